package partition

import (
	"context"

	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

// registerLifecycleHypercalls wires the partition-lifecycle, doorbell,
// byte-channel, and error-queue hypercalls this package owns into p's
// dispatch table, complementing the idle/VMPIC hypercalls
// internal/hv/ppc registers on its own.
func registerLifecycleHypercalls(p *Partition) {
	d := p.vm.Dispatcher()

	d.Register(ppc.HCallPartitionStart, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		if err := p.Start(context.Background()); err != nil {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		return ppc.Result{Status: ppc.HCallSuccess}
	})

	d.Register(ppc.HCallPartitionStop, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		if err := p.Stop(); err != nil {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		return ppc.Result{Status: ppc.HCallSuccess}
	})

	d.Register(ppc.HCallPartitionRestart, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		if err := p.Restart(); err != nil {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		return ppc.Result{Status: ppc.HCallSuccess}
	})

	d.Register(ppc.HCallPartitionGetStatus, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		var out [4]uint64
		out[0] = uint64(p.State())
		return ppc.Result{Status: ppc.HCallSuccess, Out: out}
	})

	d.Register(ppc.HCallDoorbellSend, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		obj, err := p.Handles().Get(Handle(args.A0))
		if err != nil {
			return ppc.Result{Status: ppc.HCallEBADHANDLE}
		}
		db, ok := obj.(*Doorbell)
		if !ok {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		db.Ring()
		return ppc.Result{Status: ppc.HCallSuccess}
	})

	d.Register(ppc.HCallByteChannelSend, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		obj, err := p.Handles().Get(Handle(args.A0))
		if err != nil {
			return ppc.Result{Status: ppc.HCallEBADHANDLE}
		}
		ep, ok := obj.(*ByteChannelEndpoint)
		if !ok {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		rpn, err := p.vm.GuestPhys().GetRPN(args.A1>>12, (args.A2+0xfff)>>12)
		if err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		buf := make([]byte, args.A2)
		if _, err := p.vm.ReadAt(buf, int64(rpn<<12)); err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		if err := ep.Send(buf); err != nil {
			return ppc.Result{Status: ppc.HCallEAGAIN}
		}
		return ppc.Result{Status: ppc.HCallSuccess}
	})

	d.Register(ppc.HCallByteChannelReceive, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		obj, err := p.Handles().Get(Handle(args.A0))
		if err != nil {
			return ppc.Result{Status: ppc.HCallEBADHANDLE}
		}
		ep, ok := obj.(*ByteChannelEndpoint)
		if !ok {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		buf := make([]byte, args.A2)
		n, err := ep.Receive(buf)
		if err != nil {
			return ppc.Result{Status: ppc.HCallEAGAIN}
		}
		rpn, err := p.vm.GuestPhys().GetRPN(args.A1>>12, (args.A2+0xfff)>>12)
		if err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		if _, err := p.vm.WriteAt(buf[:n], int64(rpn<<12)); err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		var out [4]uint64
		out[0] = uint64(n)
		return ppc.Result{Status: ppc.HCallSuccess, Out: out}
	})

	d.Register(ppc.HCallByteChannelPoll, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		obj, err := p.Handles().Get(Handle(args.A0))
		if err != nil {
			return ppc.Result{Status: ppc.HCallEBADHANDLE}
		}
		ep, ok := obj.(*ByteChannelEndpoint)
		if !ok {
			return ppc.Result{Status: ppc.HCallEINVAL}
		}
		canRecv, canSend := ep.Poll()
		var out [4]uint64
		if canRecv {
			out[0] = 1
		}
		if canSend {
			out[1] = 1
		}
		return ppc.Result{Status: ppc.HCallSuccess, Out: out}
	})

	d.Register(ppc.HCallErrGetInfo, func(cpu *ppc.GuestCPU, args ppc.Args) ppc.Result {
		rec, err := p.errors.Guest.Pop()
		if err != nil {
			return ppc.Result{Status: ppc.HCallEAGAIN}
		}
		rpn, err := p.vm.GuestPhys().GetRPN(args.A0>>12, 1)
		if err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		encoded := encodeRecord(rec)
		if _, err := p.vm.WriteAt(encoded, int64(rpn<<12)); err != nil {
			return ppc.Result{Status: ppc.HCallEFAULT}
		}
		return ppc.Result{Status: ppc.HCallSuccess}
	})
}

// encodeRecord serializes a Record into the fixed-layout buffer a guest's
// hv_error_t struct expects: domain, severity, lpid, vcpu as big-endian
// uint32s followed by the NUL-terminated source and message strings. Kept
// deliberately simple (no versioned wire format) since this buffer is
// produced and consumed entirely within this codebase's own guest-facing
// ABI, unlike the cross-process warm-reboot persistence format in
// internal/hv/ppc/warmreboot.go.
func encodeRecord(rec Record) []byte {
	buf := make([]byte, 16+len(rec.Source)+1+len(rec.Message)+1)
	putU32(buf[0:4], uint32(rec.Domain))
	putU32(buf[4:8], uint32(rec.Severity))
	putU32(buf[8:12], uint32(rec.LPID))
	putU32(buf[12:16], uint32(rec.VCPU))
	n := 16
	n += copy(buf[n:], rec.Source)
	buf[n] = 0
	n++
	n += copy(buf[n:], rec.Message)
	buf[n] = 0
	return buf
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
