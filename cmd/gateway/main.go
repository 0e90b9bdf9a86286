// Command gateway runs a Modbus TCP front end that bridges every request to
// an RTU serial slave instead of an in-memory data store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"gopkg.in/yaml.v3"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/gatewayengine"
	"github.com/Moonlight-Companies/gomodbus/logging"
	"github.com/Moonlight-Companies/gomodbus/server"
)

// deviceIDConfig describes the Read Device Identification objects to serve,
// loaded from an operator-supplied YAML file so vendor strings don't need
// to be hardcoded into the binary.
type deviceIDConfig struct {
	ConformityLevel byte              `yaml:"conformity_level"`
	Objects         map[string]string `yaml:"objects"`
}

func loadDeviceIDConfig(path string) (*deviceIDConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device id config: %w", err)
	}

	cfg := &deviceIDConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse device id config: %w", err)
	}

	return cfg, nil
}

// deviceIDObjectNames maps the YAML config's human-readable object keys to
// their wire object codes.
var deviceIDObjectNames = map[string]common.DeviceIDObjectCode{
	"vendor_name":            common.DeviceIDVendorName,
	"product_code":           common.DeviceIDProductCode,
	"major_minor_revision":   common.DeviceIDMajorMinorRevision,
	"vendor_url":             common.DeviceIDVendorURL,
	"product_name":           common.DeviceIDProductName,
	"model_name":             common.DeviceIDModelName,
	"user_application_name":  common.DeviceIDUserAppName,
}

func buildDeviceIdStore(cfg *deviceIDConfig) *server.MemoryDeviceIdStore {
	var options []server.DeviceIdStoreOption
	if cfg != nil && cfg.ConformityLevel != 0 {
		options = append(options, server.WithConformityLevel(cfg.ConformityLevel))
	}

	store := server.NewMemoryDeviceIdStore(options...)

	if cfg != nil {
		ctx := context.Background()
		for name, value := range cfg.Objects {
			if code, ok := deviceIDObjectNames[name]; ok {
				store.Set(ctx, code, value)
			}
		}
	}

	return store
}

func main() {
	var (
		address          string
		port             int
		serialPort       string
		baudRate         int
		gatewayTimeout   time.Duration
		deviceIDConfPath string
		debug            bool
	)

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Runs a Modbus TCP-to-RTU gateway",
		Long:  "Accepts Modbus TCP connections and forwards every request to an RTU serial slave, translating MBAP/PDU framing to RTU ADUs and back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel := common.LevelInfo
			if debug {
				logLevel = common.LevelDebug
			}
			logger := logging.NewLogger(logging.WithLevel(logLevel))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			deviceCfg, err := loadDeviceIDConfig(deviceIDConfPath)
			if err != nil {
				return err
			}
			deviceIdStore := buildDeviceIdStore(deviceCfg)

			engine := gatewayengine.NewEngine(
				serialPort,
				gatewayengine.WithLogger(logger),
				gatewayengine.WithTimeout(gatewayTimeout),
				gatewayengine.WithMode(&serial.Mode{
					BaudRate: baudRate,
					DataBits: 8,
					Parity:   serial.NoParity,
					StopBits: serial.OneStopBit,
				}),
			)
			if err := engine.Start(ctx); err != nil {
				return fmt.Errorf("start gateway engine: %w", err)
			}
			defer engine.Stop()

			modbusServer := server.NewTCPServer(
				address,
				server.WithServerPort(port),
				server.WithServerLogger(logger),
				server.WithExternalEngine(engine),
				server.WithDeviceIdStore(deviceIdStore),
			)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				logger.Info(ctx, "Received shutdown signal, stopping gateway...")
				if err := modbusServer.Stop(ctx); err != nil {
					logger.Error(ctx, "Error stopping gateway: %v", err)
				}
				cancel()
			}()

			logger.Info(ctx, "Starting Modbus TCP-to-RTU gateway on %s:%d -> %s", address, port, serialPort)
			if err := modbusServer.Start(ctx); err != nil {
				return fmt.Errorf("start gateway server: %w", err)
			}

			<-ctx.Done()
			logger.Info(ctx, "Gateway shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "0.0.0.0", "TCP address to bind to")
	cmd.Flags().IntVar(&port, "port", common.DefaultTCPPort, "TCP port to listen on")
	cmd.Flags().StringVar(&serialPort, "serial-port", "/dev/ttyUSB0", "RTU serial device path")
	cmd.Flags().IntVar(&baudRate, "baud", 9600, "RTU serial baud rate")
	cmd.Flags().DurationVar(&gatewayTimeout, "rtu-timeout", time.Second, "Timeout waiting for an RTU reply")
	cmd.Flags().StringVar(&deviceIDConfPath, "device-id-config", "", "Optional YAML file describing Read Device Identification objects")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
