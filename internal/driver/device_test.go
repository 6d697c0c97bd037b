package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/internal/protocol"
	"labware-service/pkg/driver"
)

func bound(v float64) *float64 { return &v }

func testTable(t *testing.T) driver.Table {
	t.Helper()
	table, err := driver.NewTable(map[string]driver.Command{
		"SET_SPEED": {Name: "OUT_SP_4", Type: driver.KindInt, Check: &driver.Check{Min: bound(10), Max: bound(2000)}},
		"GET_TEMP":  {Name: "IN_PV_2", Reply: &driver.ReplySpec{Type: driver.KindFloat, Parser: "slicer", Args: []interface{}{-2}}},
		"GET_NAME":  {Name: "IN_NAME", Reply: &driver.ReplySpec{Type: driver.KindString}},
		"START":     {Name: "START_1"},
	}, parser.Default())
	require.NoError(t, err)
	return table
}

type recordingObserver struct {
	mu      sync.Mutex
	records []model.CommandRecord
}

func (o *recordingObserver) ObserveCommand(record model.CommandRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
}

func (o *recordingObserver) last() model.CommandRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.records[len(o.records)-1]
}

func newTestDevice(t *testing.T, conn *fakeConn, mutate func(*Options)) *Device {
	t.Helper()
	opts := Options{
		Name:         "hotplate",
		Driver:       "test",
		Connection:   conn,
		Commands:     testTable(t),
		PollInterval: 5 * time.Millisecond,
		Logger:       zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	dev, err := NewDevice(opts)
	require.NoError(t, err)
	return dev
}

func TestSendRejectsOutOfRangeBeforeWrite(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	obs := &recordingObserver{}
	dev := newTestDevice(t, conn, func(o *Options) { o.Observers = []Observer{obs} })

	_, err := dev.SendNamed(context.Background(), "SET_SPEED", 2500)
	require.ErrorIs(t, err, driver.ErrDeviceCommand)
	assert.Contains(t, err.Error(), "maximum")
	assert.Empty(t, conn.transmitted())
	assert.Equal(t, model.CommandStatusRejected, obs.last().Status)

	_, err = dev.SendNamed(context.Background(), "SET_SPEED", "fast")
	require.ErrorIs(t, err, driver.ErrDeviceCommand)
	assert.Empty(t, conn.transmitted())
}

func TestSendFormatsCoercedValue(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	dev := newTestDevice(t, conn, nil)

	result, err := dev.SendNamed(context.Background(), "SET_SPEED", 1500.7)
	require.NoError(t, err)
	assert.Nil(t, result)

	sent := conn.transmitted()
	require.Len(t, sent, 1)
	assert.Equal(t, "OUT_SP_4 1500\r\n", sent[0].Text)

	_, err = dev.SendNamed(context.Background(), "START", nil)
	require.NoError(t, err)
	assert.Equal(t, "START_1\r\n", conn.transmitted()[1].Text)
}

func TestSendUnknownCommand(t *testing.T) {
	dev := newTestDevice(t, newFakeConn(model.ConnectionModeSerial), nil)
	_, err := dev.SendNamed(context.Background(), "NOPE", nil)
	assert.ErrorIs(t, err, driver.ErrUnknownCommand)
}

func TestReassemblyRoundTrip(t *testing.T) {
	const text = "RCT digital 25.3 2\r\n"

	for split := 1; split < len(text); split++ {
		conn := newFakeConn(model.ConnectionModeSerial)
		conn.queue(chunked(text[:split]), chunked(text[split:]))
		dev := newTestDevice(t, conn, nil)

		got, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, "RCT digital 25.3 2", got, "split at %d", split)
	}

	t.Run("many small chunks", func(t *testing.T) {
		conn := newFakeConn(model.ConnectionModeSerial)
		for _, r := range text {
			conn.queue(chunked(string(r)))
		}
		dev := newTestDevice(t, conn, nil)
		got, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		require.NoError(t, err)
		assert.Equal(t, "RCT digital 25.3 2", got)
	})
}

func TestReassemblyGuards(t *testing.T) {
	t.Run("size limit", func(t *testing.T) {
		conn := newFakeConn(model.ConnectionModeSerial)
		for i := 0; i < 10; i++ {
			conn.queue(chunked("0123456789"))
		}
		dev := newTestDevice(t, conn, func(o *Options) { o.MaxReplySize = 25 })

		_, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		assert.ErrorIs(t, err, driver.ErrDeviceReply)
	})

	t.Run("timeout while waiting for the rest", func(t *testing.T) {
		conn := newFakeConn(model.ConnectionModeSerial)
		conn.queue(chunked("partial"))
		obs := &recordingObserver{}
		dev := newTestDevice(t, conn, func(o *Options) { o.Observers = []Observer{obs} })

		_, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		assert.ErrorIs(t, err, protocol.ErrConnectionTimeout)
		assert.Equal(t, model.CommandStatusTimeout, obs.last().Status)
		require.NotNil(t, dev.Info().LastError)
	})

	t.Run("no terminator configured", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		conn := newFakeConn(model.ConnectionModeSerial)
		conn.queue(chunked("RCT"))
		framing := driver.DefaultFraming()
		framing.ReplyTerminator = ""
		dev := newTestDevice(t, conn, func(o *Options) {
			o.Framing = &framing
			o.Logger = zap.New(core)
		})

		got, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		require.NoError(t, err)
		assert.Equal(t, "RCT", got)
		assert.Equal(t, 1, logs.FilterMessage("No reply terminator set, using the reply as is").Len())
	})

	t.Run("empty reply", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		conn := newFakeConn(model.ConnectionModeSerial)
		conn.queue(model.NewReply("", model.ContentTypeText))
		dev := newTestDevice(t, conn, func(o *Options) { o.Logger = zap.New(core) })

		got, err := dev.SendNamed(context.Background(), "GET_NAME", nil)
		require.NoError(t, err)
		assert.Equal(t, "", got)
		assert.Equal(t, 1, logs.FilterMessage("Empty reply from device").Len())
	})
}

func TestSendParsesAndCasts(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	conn.queue(chunked("25.3 2\r\n"), chunked("abc 2\r\n"))
	dev := newTestDevice(t, conn, nil)

	got, err := dev.SendNamed(context.Background(), "GET_TEMP", nil)
	require.NoError(t, err)
	assert.Equal(t, 25.3, got)

	_, err = dev.SendNamed(context.Background(), "GET_TEMP", nil)
	assert.ErrorIs(t, err, driver.ErrDeviceReply)
}

func TestSimulation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	conn := newFakeConn(model.ConnectionModeSerial)
	obs := &recordingObserver{}
	dev := newTestDevice(t, conn, func(o *Options) {
		o.Simulation = true
		o.SimulatedReplies = map[string]string{"GET_TEMP": "21.5 2\r\n"}
		o.Observers = []Observer{obs}
		o.Logger = zap.New(core)
	})

	require.NoError(t, dev.Connect(context.Background()))
	assert.True(t, dev.IsConnected())
	assert.False(t, conn.IsOpen())

	got, err := dev.SendNamed(context.Background(), "GET_TEMP", nil)
	require.NoError(t, err)
	assert.Equal(t, 21.5, got)
	assert.Equal(t, model.CommandStatusSimulated, obs.last().Status)

	got, err = dev.SendNamed(context.Background(), "GET_NAME", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = dev.SendNamed(context.Background(), "SET_SPEED", 2500)
	assert.ErrorIs(t, err, driver.ErrDeviceCommand)

	_, err = dev.SendNamed(context.Background(), "SET_SPEED", 100)
	require.NoError(t, err)

	assert.Empty(t, conn.transmitted())
	assert.Positive(t, logs.FilterMessage("SIM :: Pretending to send message").Len())
	assert.Equal(t, model.DeviceStatusSimulated, dev.Info().Status)

	dev.SetSimulation(false)
	conn.queue(chunked("RCT digital\r\n"))
	got, err = dev.SendNamed(context.Background(), "GET_NAME", nil)
	require.NoError(t, err)
	assert.Equal(t, "RCT digital", got)
	assert.Len(t, conn.transmitted(), 1)
}

func TestConnectWrapsConnectionErrors(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	conn.openErr = errors.Join(protocol.ErrConnection, errors.New("no such port"))
	dev := newTestDevice(t, conn, nil)

	err := dev.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrDevice)
	assert.ErrorIs(t, err, protocol.ErrConnection)
	assert.Contains(t, err.Error(), "can't connect to device")
	assert.Equal(t, model.DeviceStatusOffline, dev.Info().Status)
}

func TestDisconnectStopsTasksFirst(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	conn.onTransmit = func(msg protocol.Message) []*model.Reply {
		return []*model.Reply{chunked("22.0 2\r\n")}
	}
	dev := newTestDevice(t, conn, nil)
	require.NoError(t, dev.Connect(context.Background()))
	assert.Equal(t, model.DeviceStatusOnline, dev.Info().Status)

	id, err := dev.StartCommandTask(context.Background(), 10*time.Millisecond, "GET_TEMP", nil)
	require.NoError(t, err)
	tk, ok := dev.Tasks().Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(tk.Results()) >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, dev.Disconnect())
	assert.Zero(t, dev.Tasks().Count())
	assert.False(t, conn.IsOpen())
	assert.Equal(t, 22.0, (<-tk.Results()).Value)

	_, err = dev.StartCommandTask(context.Background(), time.Second, "MISSING", nil)
	assert.ErrorIs(t, err, driver.ErrUnknownCommand)
}

func TestExecuteWhenReadyIsReentrant(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	conn.onTransmit = func(msg protocol.Message) []*model.Reply {
		if msg.Text == "IN_NAME\r\n" {
			return []*model.Reply{chunked("RCT digital\r\n")}
		}
		return nil
	}
	dev := newTestDevice(t, conn, nil)

	checks := 0
	check := func(ctx context.Context) (bool, error) {
		checks++
		name, err := dev.SendNamed(ctx, "GET_NAME", nil)
		if err != nil {
			return false, err
		}
		return name == "RCT digital" && checks >= 3, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := dev.ExecuteWhenReady(ctx, func(ctx context.Context) error {
		_, err := dev.SendNamed(ctx, "START", nil)
		return err
	}, check)
	require.NoError(t, err)
	assert.Equal(t, 3, checks)

	sent := conn.transmitted()
	require.Len(t, sent, 4)
	assert.Equal(t, "START_1\r\n", sent[3].Text)
}

func TestDeviceLockSerializesCallers(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	dev := newTestDevice(t, conn, nil)

	lockedCtx, unlock, err := dev.Lock(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := dev.SendNamed(context.Background(), "START", nil)
		done <- err
	}()

	// the holder itself is not blocked
	_, err = dev.SendNamed(lockedCtx, "START", nil)
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("second caller ran while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, conn.transmitted(), 1)

	unlock()
	require.NoError(t, <-done)
	assert.Len(t, conn.transmitted(), 2)

	t.Run("cancelled wait", func(t *testing.T) {
		_, unlock, err := dev.Lock(context.Background())
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = dev.SendNamed(ctx, "START", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWaitUntilReadyHonoursContext(t *testing.T) {
	dev := newTestDevice(t, newFakeConn(model.ConnectionModeSerial), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := dev.WaitUntilReady(ctx, func(ctx context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	boom := errors.New("boom")
	err = dev.WaitUntilReady(context.Background(), func(ctx context.Context) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestReadyDefaultsToIdleCheck(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	dev := newTestDevice(t, conn, nil)

	// closed connection is not idle
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dev.WaitUntilReady(ctx, nil), context.DeadlineExceeded)

	require.NoError(t, dev.Connect(context.Background()))
	ran := false
	err := dev.ExecuteWhenReady(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, ran)

	var checks atomic.Int64
	dev.SetIdleCheck(func(ctx context.Context) (bool, error) {
		return checks.Add(1) >= 2, nil
	})
	require.NoError(t, dev.WaitUntilReady(context.Background(), nil))
	assert.EqualValues(t, 2, checks.Load())

	err = dev.ExecuteWhenReady(context.Background(), nil, nil)
	assert.ErrorIs(t, err, driver.ErrDeviceCommand)
}

func TestCommandTaskStartedByLockHolderTakesTheLock(t *testing.T) {
	conn := newFakeConn(model.ConnectionModeSerial)
	dev := newTestDevice(t, conn, nil)

	lockedCtx, unlock, err := dev.Lock(context.Background())
	require.NoError(t, err)

	_, err = dev.StartCommandTask(lockedCtx, 10*time.Millisecond, "START", nil)
	require.NoError(t, err)
	defer dev.Tasks().StopAll()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, conn.transmitted(), "task polled while the lock was held")

	unlock()
	assert.Eventually(t, func() bool { return len(conn.transmitted()) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestHTTPDevicePipeline(t *testing.T) {
	table, err := driver.NewTable(map[string]driver.Command{
		"GET_HEATING_SET": {Method: "GET", Endpoint: "/api/v1/process", Path: []string{"heating", "set"},
			Reply: &driver.ReplySpec{Type: driver.KindFloat}},
		"SET_HEATING_SET": {Method: "PUT", Endpoint: "/api/v1/process", Path: []string{"heating", "set"},
			Type: driver.KindFloat, Check: &driver.Check{Min: bound(0), Max: bound(220)}},
	}, parser.Default())
	require.NoError(t, err)

	conn := newFakeConn(model.ConnectionModeHTTP)
	conn.queue(model.NewReply(`{"heating":{"set":40.5,"act":21}}`, model.ContentTypeJSON))
	dev := newTestDevice(t, conn, func(o *Options) { o.Commands = table })

	got, err := dev.SendNamed(context.Background(), "GET_HEATING_SET", nil)
	require.NoError(t, err)
	assert.Equal(t, 40.5, got)

	_, err = dev.SendNamed(context.Background(), "SET_HEATING_SET", 60)
	require.NoError(t, err)

	sent := conn.transmitted()
	require.Len(t, sent, 2)
	assert.Equal(t, "GET", sent[0].Method)
	assert.Empty(t, sent[0].Data)
	assert.Equal(t, "PUT", sent[1].Method)
	assert.Equal(t, "/api/v1/process", sent[1].Endpoint)
	assert.JSONEq(t, `{"heating":{"set":60}}`, sent[1].Data)
}
