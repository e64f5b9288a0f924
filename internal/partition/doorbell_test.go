package partition

import (
	"testing"

	"github.com/nxp-qoriq/ppchv/internal/hv/ppc"
)

func TestNormalDoorbellRing(t *testing.T) {
	var woken []int
	v := ppc.NewVPIC(2, func(vcpu int) { woken = append(woken, vcpu) })
	v.Configure(4, ppc.TriggerEdgeRising, 1, 1<<1)

	db := NewNormalDoorbell(Receiver{VPIC: v, VInt: 4})
	db.Ring()

	if len(woken) != 1 || woken[0] != 1 {
		t.Fatalf("Ring: woken = %v, want [1]", woken)
	}
}

func TestFastDoorbellExhaustion(t *testing.T) {
	v := ppc.NewVPIC(1, nil)
	for i := 0; i < ppc.MaxFastDoorbells; i++ {
		if _, err := NewFastDoorbell(DoorbellFast, Receiver{VPIC: v, VInt: i}); err != nil {
			t.Fatalf("NewFastDoorbell %d: %v", i, err)
		}
	}
	if _, err := NewFastDoorbell(DoorbellFast, Receiver{VPIC: v, VInt: 0}); err != ErrNoFastDoorbells {
		t.Fatalf("NewFastDoorbell past the hardware limit: err = %v, want ErrNoFastDoorbells", err)
	}
}
