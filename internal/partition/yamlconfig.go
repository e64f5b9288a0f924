package partition

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nxp-qoriq/ppchv/internal/fdt"
)

// YAMLSystem is a developer-convenience configuration format: the same
// information a board's device tree carries (internal/fdt), but in a
// form meant to be hand-written rather than compiled from a .dts. It is
// a strict subset of what a device tree can express — handles, memory
// sizing, vCPU counts — just enough for the handle/partition shapes
// config.go's Build understands.
type YAMLSystem struct {
	HVConfig struct {
		VMPICIRQs int `yaml:"vmpic_irqs"`
	} `yaml:"hv_config"`
	Partitions []YAMLPartition `yaml:"partitions"`
}

// YAMLPartition mirrors one "partition@N" device-tree node.
type YAMLPartition struct {
	Label      string         `yaml:"label"`
	CPUs       int            `yaml:"cpus"`
	MemorySize uint64         `yaml:"memory_size"`
	MemoryBase uint64         `yaml:"memory_base"`
	Handles    []YAMLHandle   `yaml:"handles"`
}

// YAMLHandle mirrors one "handle@N" device-tree node.
type YAMLHandle struct {
	Reg      uint32 `yaml:"reg"`
	Type     string `yaml:"type"` // "bytechan" or "doorbell"
	Peer     string `yaml:"peer,omitempty"`
	Capacity int    `yaml:"capacity,omitempty"`
	MsgSize  int    `yaml:"msg_size,omitempty"`
	Kind     string `yaml:"kind,omitempty"`     // doorbell: "normal" or "fast"
	DestVInt int    `yaml:"dest_vint,omitempty"`
}

// ParseYAML decodes a YAML document in the YAMLSystem shape.
func ParseYAML(data []byte) (*YAMLSystem, error) {
	var sys YAMLSystem
	if err := yaml.Unmarshal(data, &sys); err != nil {
		return nil, fmt.Errorf("partition: parsing yaml config: %w", err)
	}
	return &sys, nil
}

// ToFDT lowers a YAMLSystem into the same fdt.Node shape config.go's
// Build expects, so the YAML format is purely a convenience front end:
// every board still ultimately configures from a device-tree node graph,
// whether that graph came from a compiled .dtb or from this translation.
func (y *YAMLSystem) ToFDT() fdt.Node {
	root := fdt.Node{Name: "/"}

	hvNode := fdt.Node{Name: "hv-config"}
	if y.HVConfig.VMPICIRQs > 0 {
		hvNode.Properties = map[string]fdt.Property{
			"vmpic-irqs": {U32: []uint32{uint32(y.HVConfig.VMPICIRQs)}},
		}
	}
	root.Children = append(root.Children, hvNode)

	for i, p := range y.Partitions {
		pn := fdt.Node{
			Name: fmt.Sprintf("partition@%d", i),
			Properties: map[string]fdt.Property{
				"label":       {Strings: []string{p.Label}},
				"cpus":        {U32: []uint32{uint32(p.CPUs)}},
				"memory-size": {U64: []uint64{p.MemorySize}},
				"memory-base": {U64: []uint64{p.MemoryBase}},
			},
		}

		handlesNode := fdt.Node{Name: "handles"}
		for _, h := range p.Handles {
			hn := fdt.Node{
				Name: fmt.Sprintf("handle@%d", h.Reg),
				Properties: map[string]fdt.Property{
					"reg":  {U32: []uint32{h.Reg}},
					"type": {Strings: []string{h.Type}},
				},
			}
			if h.Peer != "" {
				hn.Properties["peer"] = fdt.Property{Strings: []string{h.Peer}}
			}
			if h.Capacity > 0 {
				hn.Properties["capacity"] = fdt.Property{U32: []uint32{uint32(h.Capacity)}}
			}
			if h.MsgSize > 0 {
				hn.Properties["msg-size"] = fdt.Property{U32: []uint32{uint32(h.MsgSize)}}
			}
			if h.Kind != "" {
				hn.Properties["kind"] = fdt.Property{Strings: []string{h.Kind}}
			}
			if h.DestVInt != 0 {
				hn.Properties["dest-vint"] = fdt.Property{U32: []uint32{uint32(h.DestVInt)}}
			}
			handlesNode.Children = append(handlesNode.Children, hn)
		}
		pn.Children = append(pn.Children, handlesNode)

		root.Children = append(root.Children, pn)
	}

	return root
}

// BuildFromYAML is the convenience entry point: parse, lower to fdt,
// build the system.
func BuildFromYAML(data []byte) (*System, error) {
	y, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return Build(y.ToFDT())
}
