package ika

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labware-service/internal/driver"
	"labware-service/internal/model"
	"labware-service/internal/protocol"
	pkgdriver "labware-service/pkg/driver"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// fakeHotplate answers the RCT digital protocol over TCP
type fakeHotplate struct {
	ln       net.Listener
	mu       sync.Mutex
	received []string
}

func startFakeHotplate(t *testing.T) *fakeHotplate {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := &fakeHotplate{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go h.serve(conn)
		}
	}()
	return h
}

func (h *fakeHotplate) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, " \r \n")
		h.mu.Lock()
		h.received = append(h.received, cmd)
		h.mu.Unlock()

		var reply string
		switch cmd {
		case "IN_NAME":
			reply = "RCT digital"
		case "IN_PV_1":
			reply = "31.5 1"
		case "IN_PV_2":
			reply = "25.3 2"
		case "IN_PV_4":
			reply = "500.0 4"
		case "IN_SP_1":
			reply = "80.0 1"
		default:
			continue
		}
		conn.Write([]byte(reply + "\r\n"))
	}
}

func (h *fakeHotplate) commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.received...)
}

func newHotplate(t *testing.T, h *fakeHotplate) *Hotplate {
	t.Helper()
	host, port, err := net.SplitHostPort(h.ln.Addr().String())
	require.NoError(t, err)

	inst, err := New(driver.Settings{
		Name: "hotplate",
		Mode: model.ConnectionModeTCPIP,
		Params: protocol.Params{
			"address":            host,
			"port":               port,
			"command_delay":      0,
			"receive_timeout":    "20ms",
			"receiving_interval": "5ms",
		},
	}, driver.Environment{Logger: zap.NewNop()})
	require.NoError(t, err)
	return inst.(*Hotplate)
}

func TestHotplateOverSocket(t *testing.T) {
	fake := startFakeHotplate(t)
	hp := newHotplate(t, fake)
	ctx := context.Background()

	require.NoError(t, hp.Connect(ctx))
	defer hp.Disconnect()

	assert.True(t, hp.IsConnected())
	require.NoError(t, hp.InitializeDevice(ctx))

	temp, err := hp.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25.3, temp)

	ext, err := hp.GetSensorTemperature(ctx, SensorExternal)
	require.NoError(t, err)
	assert.Equal(t, 31.5, ext)

	_, err = hp.GetSensorTemperature(ctx, 2)
	assert.ErrorIs(t, err, pkgdriver.ErrDeviceCommand)

	set, err := hp.GetTemperatureSetpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80.0, set)

	speed, err := hp.GetSpeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, speed)

	require.NoError(t, hp.SetTemperature(ctx, 60))
	require.NoError(t, hp.SetSpeed(ctx, 300))
	assert.ErrorIs(t, hp.SetSpeed(ctx, 2000), pkgdriver.ErrDeviceCommand)

	idle, err := hp.IsIdle(ctx)
	require.NoError(t, err)
	assert.True(t, idle)

	require.NoError(t, hp.StartStirring(ctx))
	idle, err = hp.IsIdle(ctx)
	require.NoError(t, err)
	assert.False(t, idle)
	require.NoError(t, hp.StopStirring(ctx))
	require.NoError(t, hp.StartTemperatureRegulation(ctx))
	require.NoError(t, hp.StopTemperatureRegulation(ctx))

	assert.Eventually(t, func() bool {
		cmds := fake.commands()
		return len(cmds) > 0 && cmds[len(cmds)-1] == "STOP_1"
	}, timeout, tick)
	assert.Contains(t, fake.commands(), "OUT_SP_1 60")
	assert.Contains(t, fake.commands(), "OUT_SP_4 300")
	assert.NotContains(t, fake.commands(), "OUT_SP_4 2000")
	assert.Equal(t, []string{"IN_NAME", "SET_MODE_A", "RESET"}, fake.commands()[:3])
}

func TestHotplateExecuteWhenReady(t *testing.T) {
	fake := startFakeHotplate(t)
	hp := newHotplate(t, fake)
	require.NoError(t, hp.Connect(context.Background()))
	defer hp.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// the idle check sends IN_NAME under the lock the action is holding
	err := hp.ExecuteWhenReady(ctx, func(ctx context.Context) error {
		return hp.StartStirring(ctx)
	}, hp.IsIdle)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		cmds := fake.commands()
		return len(cmds) == 2 && cmds[0] == "IN_NAME" && cmds[1] == "START_4"
	}, timeout, tick)

	t.Run("nil check waits for idle", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		ran := false
		err := hp.ExecuteWhenReady(short, func(ctx context.Context) error {
			ran = true
			return nil
		}, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, ran)

		require.NoError(t, hp.StopStirring(ctx))
		require.NoError(t, hp.WaitUntilReady(ctx, nil))
	})
}

func TestHotplateSimulation(t *testing.T) {
	inst, err := New(driver.Settings{
		Name:             "hotplate",
		Simulation:       true,
		SimulatedReplies: map[string]string{"GET_NAME": "RCT digital", "GET_TEMP": "42.0 2"},
	}, driver.Environment{Logger: zap.NewNop()})
	require.NoError(t, err)
	hp := inst.(*Hotplate)
	ctx := context.Background()

	require.NoError(t, hp.Connect(ctx))
	assert.True(t, hp.IsConnected())

	temp, err := hp.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, temp)

	name, err := hp.SendNamed(ctx, "GET_NAME", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, name)

	speed, err := hp.GetSpeed(ctx)
	require.NoError(t, err)
	assert.Zero(t, speed)

	assert.Equal(t, model.ConnectionModeSerial, hp.Connection().Mode())
	assert.Equal(t, 7, hp.Connection().Config().ByteSize)
	assert.Equal(t, " \r \n", hp.Framing().CommandTerminator)
	assert.ElementsMatch(t, []model.Capability{model.CapabilityTemperature, model.CapabilityStirring}, hp.Capabilities())
	require.NoError(t, hp.Disconnect())
}
