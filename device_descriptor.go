package adb

import "fmt"

type deviceDescriptorType int

const (
	// host:transport-any and host:<request>
	DeviceAny deviceDescriptorType = iota
	// host:transport:<serial> and host-serial:<serial>:<request>
	DeviceSerial
)

// DeviceDescriptor selects which device a Device talks to.
type DeviceDescriptor struct {
	descriptorType deviceDescriptorType

	// Only used if Type is DeviceSerial.
	serial string
}

func AnyDevice() DeviceDescriptor {
	return DeviceDescriptor{descriptorType: DeviceAny}
}

func DeviceWithSerial(serial string) DeviceDescriptor {
	return DeviceDescriptor{
		descriptorType: DeviceSerial,
		serial:         serial,
	}
}

// Serial returns the serial this descriptor was created with, empty for AnyDevice.
func (d DeviceDescriptor) Serial() string {
	return d.serial
}

func (d DeviceDescriptor) String() string {
	switch d.descriptorType {
	case DeviceSerial:
		return d.serial
	default:
		return "any-device"
	}
}

func (d DeviceDescriptor) getHostPrefix() string {
	switch d.descriptorType {
	case DeviceSerial:
		return fmt.Sprintf("host-serial:%s", d.serial)
	default:
		return "host"
	}
}

func (d DeviceDescriptor) getTransportDescriptor() string {
	switch d.descriptorType {
	case DeviceSerial:
		return fmt.Sprintf("transport:%s", d.serial)
	default:
		return "transport-any"
	}
}
