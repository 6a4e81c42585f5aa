package wireguard

import (
	"errors"
	"fmt"
	"testing"
)

func TestAllocateIPFirstAddress(t *testing.T) {
	ip, err := AllocateIP("10.8", 2, map[string]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip != "10.8.0.2" {
		t.Errorf("first allocated ip = %s, want 10.8.0.2", ip)
	}
}

func TestAllocateIPSkipsUsed(t *testing.T) {
	used := map[string]bool{
		"10.8.0.2": true,
		"10.8.0.3": true,
	}
	ip, err := AllocateIP("10.8", 2, used)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip != "10.8.0.4" {
		t.Errorf("allocated ip = %s, want 10.8.0.4", ip)
	}
}

func TestAllocateIPCrossesOctetBoundary(t *testing.T) {
	used := make(map[string]bool)
	for fourth := 2; fourth <= 255; fourth++ {
		used[fmt.Sprintf("10.8.0.%d", fourth)] = true
	}
	ip, err := AllocateIP("10.8", 2, used)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip != "10.8.1.0" {
		t.Errorf("allocated ip = %s, want 10.8.1.0", ip)
	}
}

func TestAllocateIPExhausted(t *testing.T) {
	used := make(map[string]bool)
	for third := 0; third <= 255; third++ {
		for fourth := 0; fourth <= 255; fourth++ {
			used[fmt.Sprintf("10.8.%d.%d", third, fourth)] = true
		}
	}
	_, err := AllocateIP("10.8", 2, used)
	if !errors.Is(err, ErrNoFreeAddresses) {
		t.Errorf("err = %v, want ErrNoFreeAddresses", err)
	}
}

func TestAllocateIPNeverReturnsReserved(t *testing.T) {
	// Сколько бы адресов ни было занято, сеть и сервер не выдаются
	used := map[string]bool{}
	for i := 0; i < 600; i++ {
		ip, err := AllocateIP("10.8", 2, used)
		if err != nil {
			t.Fatalf("unexpected error at step %d: %v", i, err)
		}
		if ip == "10.8.0.0" || ip == "10.8.0.1" || ip == "10.8.255.255" {
			t.Fatalf("allocator returned reserved address %s", ip)
		}
		if used[ip] {
			t.Fatalf("allocator returned already used address %s", ip)
		}
		used[ip] = true
	}
}
