package partition

import "testing"

const testManifest = `
hv_config:
  vmpic_irqs: 16
partitions:
  - label: rtos
    cpus: 1
    memory_size: 65536
    handles:
      - reg: 0
        type: bytechan
        peer: linux
        capacity: 4
        msg_size: 64
      - reg: 1
        type: doorbell
        kind: normal
        dest_vint: 2
  - label: linux
    cpus: 1
    memory_size: 65536
    handles:
      - reg: 0
        type: bytechan
        peer: rtos
        capacity: 4
        msg_size: 64
`

func TestBuildFromYAML(t *testing.T) {
	sys, err := BuildFromYAML([]byte(testManifest))
	if err != nil {
		t.Fatalf("BuildFromYAML: %v", err)
	}
	if len(sys.Partitions) != 2 {
		t.Fatalf("len(Partitions) = %d, want 2", len(sys.Partitions))
	}

	rtos, ok := sys.Partitions["rtos"]
	if !ok {
		t.Fatalf("missing partition %q", "rtos")
	}
	linux, ok := sys.Partitions["linux"]
	if !ok {
		t.Fatalf("missing partition %q", "linux")
	}

	rtosEnd, err := rtos.Handles().Get(0)
	if err != nil {
		t.Fatalf("rtos handle 0: %v", err)
	}
	linuxEnd, err := linux.Handles().Get(0)
	if err != nil {
		t.Fatalf("linux handle 0: %v", err)
	}
	a, ok := rtosEnd.(*ByteChannelEndpoint)
	if !ok {
		t.Fatalf("rtos handle 0 is not a *ByteChannelEndpoint: %T", rtosEnd)
	}
	b, ok := linuxEnd.(*ByteChannelEndpoint)
	if !ok {
		t.Fatalf("linux handle 0 is not a *ByteChannelEndpoint: %T", linuxEnd)
	}

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 64)
	n, err := b.Receive(buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("Receive = %q, want %q", buf[:n], "ping")
	}

	if _, err := rtos.Handles().Get(1); err != nil {
		t.Fatalf("rtos handle 1 (doorbell): %v", err)
	}
}

func TestBuildFromYAMLMissingPeer(t *testing.T) {
	const bad = `
partitions:
  - label: solo
    cpus: 1
    memory_size: 4096
    handles:
      - reg: 0
        type: bytechan
`
	if _, err := BuildFromYAML([]byte(bad)); err == nil {
		t.Fatalf("BuildFromYAML with a bytechan handle missing its peer: expected an error")
	}
}
