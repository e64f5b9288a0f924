package ppc

import "testing"

func TestDispatcherRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	d.Register(HCallIdle, func(cpu *GuestCPU, args Args) Result {
		return ok(args.A0 + 1)
	})

	res := d.Dispatch(nil, Args{Num: HCallIdle, A0: 41})
	if res.Status != HCallSuccess {
		t.Fatalf("Dispatch: status = %v, want HCallSuccess", res.Status)
	}
	if res.Out[0] != 42 {
		t.Fatalf("Dispatch: Out[0] = %d, want 42", res.Out[0])
	}
}

func TestDispatcherUnimplemented(t *testing.T) {
	d := NewDispatcher()
	res := d.Dispatch(nil, Args{Num: 9999})
	if res.Status != HCallEUNIMPLEMENTED {
		t.Fatalf("Dispatch of an unregistered hypercall: status = %v, want HCallEUNIMPLEMENTED", res.Status)
	}
}

func TestDispatcherRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Register on a duplicate hypercall number: expected a panic")
		}
	}()
	d := NewDispatcher()
	d.Register(HCallIdle, func(cpu *GuestCPU, args Args) Result { return ok() })
	d.Register(HCallIdle, func(cpu *GuestCPU, args Args) Result { return ok() })
}
