package main

import (
	"context"
	"fmt"
	"strings"

	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/config"
)

// doRaw sends request to the adb server and prints what comes back.
// host: services answer with one length-prefixed message, everything else streams.
func doRaw(ctx context.Context, cfg *config.Config, request string) error {
	client, err := adb.NewWithConfig(adb.ServerConfig{
		Host:      cfg.Adb.Host,
		Port:      cfg.Adb.Port,
		PathToAdb: cfg.Adb.Path,
		AutoStart: cfg.Adb.AutoStart,
	})
	if err != nil {
		return err
	}

	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = conn.SendMessage([]byte(request)); err != nil {
		return err
	}
	status, err := conn.ReadStatus(request)
	if err != nil {
		return err
	}

	var msg []byte
	if strings.HasPrefix(request, "host") {
		msg, err = conn.ReadMessage()
	} else {
		msg, err = conn.ReadUntilEof()
	}
	fmt.Printf("%s> %s\n", status, msg)
	return err
}
