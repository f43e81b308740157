package adb

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/prife/adbcheck/wire"
)

type DeviceInfo struct {
	// Always set.
	Serial string

	State string
	// Product, device, and model are not set in the short form.
	Product     string
	Model       string
	DeviceInfo  string
	TransportID int

	// Only set for devices connected via USB.
	Usb string
}

// IsUsb returns true if the device is connected via USB.
func (d *DeviceInfo) IsUsb() bool {
	return d.Usb != ""
}

// IsOnline returns true if adb can talk to the device.
func (d *DeviceInfo) IsOnline() bool {
	return d.State == "device"
}

func newDevice(serial, state string, attrs map[string]string) (*DeviceInfo, error) {
	if serial == "" {
		return nil, fmt.Errorf("%w: device serial cannot be blank", wire.ErrAssertion)
	}

	var tid int
	if tidstr, ok := attrs["transport_id"]; ok {
		if value, err := strconv.Atoi(tidstr); err == nil {
			tid = value
		}
	}

	return &DeviceInfo{
		Serial:      serial,
		State:       state,
		Product:     attrs["product"],
		Model:       attrs["model"],
		DeviceInfo:  attrs["device"],
		Usb:         attrs["usb"],
		TransportID: tid,
	}, nil
}

func parseDeviceList(list string, lineParseFunc func(string) (*DeviceInfo, error)) ([]*DeviceInfo, error) {
	devices := []*DeviceInfo{}
	scanner := bufio.NewScanner(strings.NewReader(list))

	for scanner.Scan() {
		if isBlank(scanner.Text()) {
			continue
		}
		device, err := lineParseFunc(scanner.Text())
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func parseDeviceShort(line string) (*DeviceInfo, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: malformed device line, expected 2 fields but found %d", wire.ErrParse, len(fields))
	}

	return newDevice(fields[0], fields[1], map[string]string{})
}

func readBuff(buf *bytes.Buffer, toSpace bool) ([]byte, error) {
	cbuf := buf.Bytes()

	for i, c := range cbuf {
		isSpace := c == '\t' || c == ' '
		if isSpace == toSpace {
			return buf.Next(i), nil
		}
	}
	return nil, fmt.Errorf("not found")
}

// parseDeviceLong parses one line of `adb devices -l`. Attribute values may contain
// spaces (product:ALP AL00), so the line is split on "key:" boundaries rather than fields.
func parseDeviceLong(line string) (*DeviceInfo, error) {
	invalidErr := fmt.Errorf("%w: invalid line:%s", wire.ErrParse, line)
	buf := bytes.NewBufferString(strings.TrimSpace(line))

	serial, err := readBuff(buf, true)
	if err != nil {
		return nil, invalidErr
	}
	if _, err = readBuff(buf, false); err != nil {
		return nil, invalidErr
	}

	// state is the last field when no attributes follow
	state, err := readBuff(buf, true)
	if err != nil {
		return newDevice(string(serial), buf.String(), map[string]string{})
	}
	if _, err = readBuff(buf, false); err != nil {
		return nil, invalidErr
	}

	attrs := map[string]string{}
	rbuf, err := buf.ReadBytes(':')
	if err != nil {
		return nil, invalidErr
	}
	key := string(rbuf[:len(rbuf)-1])
	for {
		rbuf, err = buf.ReadBytes(':')
		if err != nil {
			attrs[key] = string(bytes.TrimSpace(rbuf))
			break
		}
		bi := bytes.LastIndexByte(rbuf, ' ')
		if bi < 0 {
			return nil, invalidErr
		}
		attrs[key] = string(bytes.TrimSpace(rbuf[:bi]))

		key = string(rbuf[bi+1 : len(rbuf)-1])
	}
	return newDevice(string(serial), string(state), attrs)
}
