package partition

import "testing"

func TestByteChannelSendReceive(t *testing.T) {
	a, b := NewByteChannel(4, 16)

	var notified bool
	b.OnDataAvailable(func() { notified = true })

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !notified {
		t.Fatalf("Send into an empty queue: expected the peer's data-available callback to fire")
	}

	buf := make([]byte, 16)
	n, err := b.Receive(buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Receive = %q, want %q", buf[:n], "hello")
	}
}

func TestByteChannelSpaceAvailableNotifiesPeer(t *testing.T) {
	a, b := NewByteChannel(1, 16)

	var spaceNotified bool
	b.OnSpaceAvailable(func() { spaceNotified = true })

	if err := b.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := b.Send([]byte("y")); err != ErrByteChannelFull {
		t.Fatalf("Send into a full queue: err = %v, want ErrByteChannelFull", err)
	}

	buf := make([]byte, 16)
	if _, err := a.Receive(buf); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !spaceNotified {
		t.Fatalf("Receive draining a full queue: expected the peer's space-available callback to fire")
	}
}

func TestByteChannelReceiveEmpty(t *testing.T) {
	a, _ := NewByteChannel(4, 16)
	buf := make([]byte, 16)
	if _, err := a.Receive(buf); err != ErrByteChannelEmpty {
		t.Fatalf("Receive with nothing queued: err = %v, want ErrByteChannelEmpty", err)
	}
}

func TestByteChannelPoll(t *testing.T) {
	a, b := NewByteChannel(1, 16)
	canRecv, canSend := a.Poll()
	if canRecv || !canSend {
		t.Fatalf("Poll on a fresh channel = %v, %v, want false, true", canRecv, canSend)
	}

	if err := b.Send([]byte("z")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	canRecv, _ = a.Poll()
	if !canRecv {
		t.Fatalf("Poll after peer Send: expected canReceive true")
	}
}

func TestByteChannelMessageTooLarge(t *testing.T) {
	a, _ := NewByteChannel(4, 4)
	if err := a.Send([]byte("toolong")); err == nil {
		t.Fatalf("Send exceeding the configured message size: expected an error")
	}
}
