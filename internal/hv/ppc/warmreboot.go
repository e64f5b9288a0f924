package ppc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// warmRebootMagic identifies a persisted warm-reboot record. Kept stable
// across hypervisor builds so a partition's PAMU/gphys state survives a
// watchdog-triggered reset even if the hypervisor image itself was
// updated in place.
const warmRebootMagic uint32 = 0x98fef3ca

const warmRebootVersion uint32 = 1

// ErrWarmRebootBadMagic is returned when a persisted blob does not start
// with warmRebootMagic, i.e. it is not warm-reboot state at all (a cold
// boot, or corrupted/foreign data).
var ErrWarmRebootBadMagic = errors.New("ppc: warm-reboot record has wrong magic")

// ErrWarmRebootVersion is returned when a persisted blob's version is
// newer than this build understands.
var ErrWarmRebootVersion = errors.New("ppc: warm-reboot record version unsupported")

// CaptureWarmReboot serializes gphys's full mapping set plus a content
// hash into a self-describing blob, to be written to the board's
// persistent warm-reboot storage before a WatchdogReset takes effect.
func CaptureWarmReboot(lpid LPID, gphys *GuestPhys) []byte {
	mappings := gphys.dumpMappings()

	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint32(len(mappings)))
	for _, m := range mappings {
		binary.Write(&body, binary.BigEndian, m.EPN)
		binary.Write(&body, binary.BigEndian, m.RPN)
		binary.Write(&body, binary.BigEndian, m.Pages)
		binary.Write(&body, binary.BigEndian, m.Attr)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, warmRebootMagic)
	binary.Write(&out, binary.BigEndian, warmRebootVersion)
	binary.Write(&out, binary.BigEndian, uint8(lpid))
	binary.Write(&out, binary.BigEndian, checksum(body.Bytes()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// RestoreWarmReboot validates and replays a CaptureWarmReboot blob into a
// freshly created (empty) GuestPhys, reinstalling every mapping it
// recorded.
func RestoreWarmReboot(data []byte, gphys *GuestPhys) (LPID, error) {
	r := bytes.NewReader(data)

	var magic, version uint32
	var lpidByte uint8
	var sum uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return 0, fmt.Errorf("ppc: short warm-reboot record: %w", err)
	}
	if magic != warmRebootMagic {
		return 0, ErrWarmRebootBadMagic
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return 0, fmt.Errorf("ppc: short warm-reboot record: %w", err)
	}
	if version > warmRebootVersion {
		return 0, ErrWarmRebootVersion
	}
	if err := binary.Read(r, binary.BigEndian, &lpidByte); err != nil {
		return 0, fmt.Errorf("ppc: short warm-reboot record: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &sum); err != nil {
		return 0, fmt.Errorf("ppc: short warm-reboot record: %w", err)
	}

	body := data[len(data)-r.Len():]
	if checksum(body) != sum {
		return 0, errors.New("ppc: warm-reboot record checksum mismatch")
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return 0, fmt.Errorf("ppc: truncated warm-reboot record: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var m gphysMapping
		if err := binary.Read(r, binary.BigEndian, &m.EPN); err != nil {
			return 0, fmt.Errorf("ppc: truncated warm-reboot record: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &m.RPN); err != nil {
			return 0, fmt.Errorf("ppc: truncated warm-reboot record: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &m.Pages); err != nil {
			return 0, fmt.Errorf("ppc: truncated warm-reboot record: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &m.Attr); err != nil {
			return 0, fmt.Errorf("ppc: truncated warm-reboot record: %w", err)
		}
		if err := gphys.Map(m.EPN, m.RPN, m.Pages, m.Attr); err != nil {
			return 0, fmt.Errorf("ppc: replaying warm-reboot mapping %d: %w", i, err)
		}
	}

	return LPID(lpidByte), nil
}

// checksum is a simple additive checksum, not a cryptographic digest:
// this data never crosses a trust boundary, it only needs to catch
// accidental corruption in board flash storage.
func checksum(b []byte) uint32 {
	var sum uint32
	for i, c := range b {
		sum += uint32(c) * uint32(i+1)
	}
	return sum
}
