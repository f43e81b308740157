package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prife/adbcheck/wire"
)

const (
	CommandTimeoutShortDefault = time.Second * 2
	CommandTimeoutLongDefault  = time.Second * 30

	// connect may be slow over the internet
	connectTimeout = time.Second * 5
)

// Adb communicates with host services on the adb server.
// Eg.
//
//	client, _ := adb.New()
//	client.ListDevices()
//
// See list of services at https://android.googlesource.com/platform/packages/modules/adb/+/refs/heads/main/SERVICES.TXT.
type Adb struct {
	server server
}

// New creates a new Adb client that uses the default ServerConfig.
func New() (*Adb, error) {
	return NewWithConfig(ServerConfig{})
}

func NewWithConfig(config ServerConfig) (*Adb, error) {
	server, err := newServer(config)
	if err != nil {
		return nil, err
	}
	return &Adb{server}, nil
}

// Dial establishes a connection with the adb server.
func (c *Adb) Dial(ctx context.Context) (wire.IConn, error) {
	return c.server.Dial(ctx)
}

// StartServer starts the adb server if it’s not running.
func (c *Adb) StartServer() error {
	return c.server.Start()
}

func (c *Adb) Device(descriptor DeviceDescriptor) *Device {
	return &Device{
		server:          c.server,
		descriptor:      descriptor,
		deviceListFunc:  c.ListDevices,
		CmdTimeoutShort: CommandTimeoutShortDefault,
		CmdTimeoutLong:  CommandTimeoutLongDefault,
	}
}

// ServerVersion asks the ADB server for its internal version number.
func (c *Adb) ServerVersion() (int, error) {
	resp, err := roundTripSingleResponse(c.server, "host:version")
	if err != nil {
		return 0, fmt.Errorf("GetServerVersion: %w", err)
	}

	version, err := c.parseServerVersion(resp)
	if err != nil {
		return 0, fmt.Errorf("GetServerVersion: %w", err)
	}
	return version, nil
}

// ListDeviceSerials returns the serial numbers of all attached devices.
// Corresponds to the command:
//
//	adb devices
func (c *Adb) ListDeviceSerials() ([]string, error) {
	resp, err := roundTripSingleResponse(c.server, "host:devices")
	if err != nil {
		return nil, fmt.Errorf("ListDeviceSerials: %w", err)
	}

	devices, err := parseDeviceList(string(resp), parseDeviceShort)
	if err != nil {
		return nil, fmt.Errorf("ListDeviceSerials: %w", err)
	}

	serials := make([]string, len(devices))
	for i, dev := range devices {
		serials[i] = dev.Serial
	}
	return serials, nil
}

// ListDevices returns the list of connected devices.
// Corresponds to the command:
//
//	adb devices -l
func (c *Adb) ListDevices() ([]*DeviceInfo, error) {
	resp, err := roundTripSingleResponse(c.server, "host:devices-l")
	if err != nil {
		return nil, fmt.Errorf("ListDevices: %w", err)
	}

	devices, err := parseDeviceList(string(resp), parseDeviceLong)
	if err != nil {
		return nil, fmt.Errorf("ListDevices: %w", err)
	}
	return devices, nil
}

// Connect connect to a device via TCP/IP
// Corresponds to the command:
//
//	adb connect ip:port
//
// The server answers OKAY even when the connection fails, the message tells.
func (c *Adb) Connect(addr string) error {
	resp, err := roundTripSingleResponseTimeout(c.server, "host:connect:"+addr, connectTimeout)
	if err != nil {
		return fmt.Errorf("Connect: %w", err)
	}
	msg := string(resp)
	if strings.HasPrefix(msg, "connected to") || strings.HasPrefix(msg, "already connected to") {
		return nil
	}
	return fmt.Errorf("Connect: %w: %s", wire.ErrAdb, msg)
}

func (c *Adb) Disconnect(addr string) error {
	_, err := roundTripSingleResponse(c.server, "host:disconnect:"+addr)
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (c *Adb) parseServerVersion(versionRaw []byte) (int, error) {
	versionStr := string(versionRaw)
	version, err := strconv.ParseInt(versionStr, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: error parsing server version: %s", wire.ErrParse, versionStr)
	}
	return int(version), nil
}

func featuresStrToMap(attr string) (features map[string]bool) {
	features = make(map[string]bool)
	for _, f := range strings.Split(attr, ",") {
		if f = strings.TrimSpace(f); f != "" {
			features[f] = true
		}
	}
	return
}
