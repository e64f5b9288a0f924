package partition

import (
	"fmt"

	"github.com/nxp-qoriq/ppchv/internal/fdt"
	"github.com/nxp-qoriq/ppchv/internal/hv"
	"github.com/nxp-qoriq/ppchv/internal/hv/factory"
	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// System is the fully-built configuration: every partition this board
// boots, keyed by name, plus the shared VMPIC wrapping the board's one
// hardware PIC.
type System struct {
	Partitions map[string]*Partition
	VMPIC      *ppc.VMPIC
}

func u32(n fdt.Node, prop string, def uint32) uint32 {
	if p, ok := n.Properties[prop]; ok && len(p.U32) > 0 {
		return p.U32[0]
	}
	return def
}

func u64(n fdt.Node, prop string, def uint64) uint64 {
	if p, ok := n.Properties[prop]; ok && len(p.U64) > 0 {
		return p.U64[0]
	}
	if p, ok := n.Properties[prop]; ok && len(p.U32) > 0 {
		return uint64(p.U32[0])
	}
	return def
}

func str(n fdt.Node, prop string, def string) string {
	if p, ok := n.Properties[prop]; ok && len(p.Strings) > 0 {
		return p.Strings[0]
	}
	return def
}

func child(n fdt.Node, name string) (fdt.Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return fdt.Node{}, false
}

func children(n fdt.Node, prefix string) []fdt.Node {
	var out []fdt.Node
	for _, c := range n.Children {
		if len(c.Name) >= len(prefix) && c.Name[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

// Build walks a device-tree configuration root and constructs every
// partition it describes: one hv.Hypervisor per board (there is only
// ever one ppc backend instance), one ppc.VirtualMachine per
// "partition@N" child node, and the byte-channels/doorbells/VMPIC
// assignments those nodes reference by name.
//
// Expected shape (abbreviated; properties not recognized here are simply
// ignored, matching a real device tree's forward-compatibility):
//
//	/ {
//	  hv-config { vmpic-irqs = <N>; };
//	  partition@0 {
//	    label = "rtos"; cpus = <1>; memory-size = <0x4000000>; memory-base = <0x0>;
//	    handles {
//	      handle@0 { reg = <0>; type = "bytechan"; peer = "linux"; capacity = <16>; msg-size = <256>; };
//	      handle@1 { reg = <1>; type = "doorbell"; kind = "fast"; dest-vint = <3>; };
//	    };
//	  };
//	  partition@1 { label = "linux"; ... };
//	};
func Build(root fdt.Node) (*System, error) {
	hvNode, _ := child(root, "hv-config")
	nirqs := int(u32(hvNode, "vmpic-irqs", 256))

	h, err := factory.OpenWithArchitecture(hv.ArchitecturePPC32E500MC)
	if err != nil {
		return nil, fmt.Errorf("partition: opening ppc hypervisor: %w", err)
	}

	vmpic := ppc.NewVMPIC(nirqs, noopVMPICBackend{})
	sys := &System{Partitions: make(map[string]*Partition), VMPIC: vmpic}

	partNodes := children(root, "partition@")
	byteChanPeers := make(map[string]*ByteChannelEndpoint) // "partA:partB" -> pending unmatched endpoint

	for _, pn := range partNodes {
		label := str(pn, "label", pn.Name)
		ncpus := int(u32(pn, "cpus", 1))
		memSize := u64(pn, "memory-size", 0)
		memBase := u64(pn, "memory-base", 0)

		vm, err := h.NewVirtualMachine(hv.SimpleVMConfig{
			NumCPUs: ncpus,
			MemSize: memSize,
			MemBase: memBase,
		})
		if err != nil {
			return nil, fmt.Errorf("partition: creating %q: %w", label, err)
		}
		ppcVM, ok := vm.(*ppc.VirtualMachine)
		if !ok {
			return nil, fmt.Errorf("partition: factory returned unexpected VirtualMachine type for %q", label)
		}
		ppcVM.SetVMPIC(vmpic)

		part := New(label, ppcVM)
		sys.Partitions[label] = part

		handlesNode, _ := child(pn, "handles")
		for _, hn := range handlesNode.Children {
			if err := buildHandle(part, hn, byteChanPeers, label); err != nil {
				return nil, fmt.Errorf("partition: %q handle %q: %w", label, hn.Name, err)
			}
		}
	}

	return sys, nil
}

func buildHandle(part *Partition, hn fdt.Node, pending map[string]*ByteChannelEndpoint, selfLabel string) error {
	handleNum := u32(hn, "reg", 0)
	switch str(hn, "type", "") {
	case "bytechan":
		peer := str(hn, "peer", "")
		if peer == "" {
			return fmt.Errorf("bytechan handle missing peer")
		}
		key := channelKey(selfLabel, peer)
		if ep, ok := pending[key]; ok {
			delete(pending, key)
			return part.Handles().AllocAt(Handle(handleNum), ep)
		}
		capacity := int(u32(hn, "capacity", 16))
		msgSize := int(u32(hn, "msg-size", 256))
		a, b := NewByteChannel(capacity, msgSize)
		pending[channelKey(peer, selfLabel)] = b
		return part.Handles().AllocAt(Handle(handleNum), a)

	case "doorbell":
		destVInt := int(u32(hn, "dest-vint", 0))
		receiver := Receiver{VPIC: part.VM().VPIC(), VInt: destVInt}
		var db *Doorbell
		var err error
		if str(hn, "kind", "normal") == "fast" {
			db, err = NewFastDoorbell(DoorbellFast, receiver)
		} else {
			db = NewNormalDoorbell(receiver)
		}
		if err != nil {
			return err
		}
		return part.Handles().AllocAt(Handle(handleNum), db)

	default:
		return fmt.Errorf("unknown handle type %q", str(hn, "type", ""))
	}
}

func channelKey(a, b string) string { return a + ":" + b }

// noopVMPICBackend is used until a board's real interrupt-controller
// driver is wired in; VMPIC's own claim/mask/EOI bookkeeping works
// correctly against it, only the real hardware side effects are absent.
type noopVMPICBackend struct{}

func (noopVMPICBackend) SetMask(irq int, masked bool)        {}
func (noopVMPICBackend) SetDestination(irq int, physCPU uint32) {}
func (noopVMPICBackend) EOIHardware(irq int)                  {}

var _ ppc.VMPICBackend = noopVMPICBackend{}
