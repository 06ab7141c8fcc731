package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/link"
	"github.com/itohio/govitals/pkg/logging"
	"github.com/itohio/govitals/pkg/publish"
	"github.com/itohio/govitals/pkg/sample"
	"github.com/itohio/govitals/pkg/scope"
	"github.com/itohio/govitals/pkg/session"
	"github.com/itohio/govitals/pkg/store"
)

func main() {
	var (
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		linkFlag           = flag.String("link", "", "Link override: serial, udp or mock")
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		listenFlag         = flag.String("listen", "", "UDP listen address override (e.g., :3333)")
		mockFlag           = flag.Bool("mock", false, "Use the simulated board (same as -link mock)")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of ECG samples to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg, *linkFlag, *portFlag, *listenFlag, *mockFlag, *averageSamplesFlag)

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "vitalview")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	application := app.NewWithID("com.itohio.govitals")

	window := application.NewWindow("Vital Signs Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		logger:     logger,
		window:     window,
		session:    session.New(windowDuration(cfg), cfg.Alarm.HypoxiaSpO2, logger),
	}

	state.scopeWidget = scope.New(&cfg.Display)
	state.vitals = newVitalsPanel(cfg.Thresholds())
	state.mockPanel = newMockPanel(state)
	state.registerUpdates()
	state.startFeed()

	content := container.NewBorder(
		createToolbar(state),
		state.mockPanel.container,
		nil,
		state.vitals.container,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.SetCloseIntercept(func() {
		state.shutdown()
		window.Close()
	})
	window.ShowAndRun()
}

// applyFlags applies command line overrides to cfg.
func applyFlags(cfg *config.Config, kind, port, listen string, mock bool, averageSamples int) {
	if kind != "" {
		cfg.Link.Kind = kind
	}
	if mock {
		cfg.Link.Kind = config.LinkMock
	}
	if port != "" {
		cfg.Serial.Port = port
		if kind == "" && !mock {
			cfg.Link.Kind = config.LinkSerial
		}
	}
	if listen != "" {
		cfg.Link.Listen = listen
	}
	if averageSamples >= 0 {
		cfg.Display.AverageSamples = averageSamples
	}
}

// monitoringChain tracks the components of the monitoring chain for graceful shutdown.
type monitoringChain struct {
	device         link.Device
	sessionDone    chan struct{} // closed when ProcessSamples returns
	publisher      *publish.Publisher
	publisherClose func()
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	window     fyne.Window

	session     *session.Session
	scopeWidget *scope.ScopeWidget
	vitals      *vitalsPanel
	mockPanel   *mockPanel
	connectBtn  *widget.Button
	recordBtn   *widget.Button

	mu       sync.Mutex
	device   link.Device
	chain    *monitoringChain
	recorder *session.Recorder
	store    *store.DB
	stored   *store.Session

	hub  *publish.Hub
	feed *http.Server

	throttle throttle
}

// createToolbar creates the toolbar with Connect, Record and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("Connect", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	recordBtn := widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() {
		handleRecord(state)
	})
	state.recordBtn = recordBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, recordBtn, settingsBtn),
		nil,
		nil,
	)
}

// registerUpdates forwards session snapshots to the widgets at most once per frame.
func (state *appState) registerUpdates() {
	state.session.OnUpdate(func(snap session.Snapshot) {
		if !state.throttle.allow() {
			return
		}
		fyne.Do(func() {
			state.scopeWidget.UpdateData(snap)
			state.vitals.update(snap)
			state.mockPanel.refreshLEDs()
		})
	})
}

// openDevice creates the device selected by the link configuration.
func openDevice(cfg *config.Config, logger *zap.Logger) link.Device {
	switch cfg.Link.Kind {
	case config.LinkSerial:
		return link.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Link.BufferSize, logger)
	case config.LinkMock:
		return link.NewMock(cfg, logger)
	default:
		return link.NewUDP(cfg.Link.Listen, cfg.Link.BufferSize, logger)
	}
}

// describeLink names the configured link for messages.
func describeLink(cfg *config.Config) string {
	switch cfg.Link.Kind {
	case config.LinkSerial:
		return fmt.Sprintf("serial port %s", cfg.Serial.Port)
	case config.LinkMock:
		return "simulated board"
	default:
		return fmt.Sprintf("UDP %s", cfg.Link.Listen)
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	state.mu.Lock()
	connected := state.device != nil && state.device.IsConnected()
	state.mu.Unlock()

	if connected {
		state.disconnect()
		state.connectBtn.SetText("Connect")
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.mockPanel.setDevice(nil)
		return
	}

	if err := state.connect(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.connectBtn.SetText("Disconnect")
	state.connectBtn.SetIcon(theme.LogoutIcon())
}

// connect opens the device and starts the chain:
// messages -> converter (vitals to session) -> optional averaging -> session.
func (state *appState) connect() error {
	state.mu.Lock()
	defer state.mu.Unlock()

	device := openDevice(state.cfg, state.logger)
	if err := device.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", describeLink(state.cfg), err)
	}
	state.logger.Info("Connected", zap.String("link", describeLink(state.cfg)))

	chain := &monitoringChain{
		device:      device,
		sessionDone: make(chan struct{}),
	}
	if state.cfg.Publish.Enabled {
		if err := chain.startPublisher(state.cfg, state.logger); err != nil {
			state.logger.Warn("Publishing disabled", zap.Error(err))
		} else {
			state.session.AddSink(chain.publisher)
		}
	}

	state.session.Reset()
	state.session.ResetShutdown()

	stream := sample.NewConverter(state.session.HandleVitals, 500, state.logger)(device.Messages())
	if n := state.cfg.Display.AverageSamples; n > 0 {
		stream = sample.NewAveragingConverter(n, 500)(stream)
	}

	go func() {
		defer close(chain.sessionDone)
		state.session.ProcessSamples(stream)
	}()

	state.device = device
	state.chain = chain
	if mock, ok := device.(*link.Mock); ok {
		state.mockPanel.setDevice(mock)
	}
	return nil
}

// startPublisher connects the configured transport.
func (c *monitoringChain) startPublisher(cfg *config.Config, logger *zap.Logger) error {
	var conn publish.Conn
	switch cfg.Publish.Transport {
	case config.TransportMQTT:
		mc, err := publish.ConnectMQTT(publish.MQTTOptions{
			Broker:   cfg.Publish.URL,
			ClientID: cfg.Publish.Name,
			Username: cfg.Publish.Username,
			Password: cfg.Publish.Password,
			QoS:      cfg.Publish.QoS,
		}, logger.Named("mqtt"))
		if err != nil {
			return err
		}
		conn = mc
		c.publisherClose = func() {
			st := mc.Stats()
			mc.Close()
			logger.Info("MQTT publisher closed",
				zap.Uint64("sent", st.Sent),
				zap.Uint64("dropped", st.Dropped),
				zap.Uint64("failed", st.Failed),
			)
		}
	default:
		nc, err := publish.Connect(cfg.Publish.URL, cfg.Publish.Name)
		if err != nil {
			return err
		}
		conn = nc
		c.publisherClose = func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("Failed to drain NATS connection", zap.Error(err))
			}
		}
	}

	c.publisher = publish.New(conn, publish.Subjects{
		Vitals: cfg.Publish.VitalsSubject,
		Events: cfg.Publish.EventsSubject,
		ECG:    cfg.Publish.ECGSubject,
	}, cfg.Publish.ECGBatch, logger.Named("publish"))
	logger.Info("Publishing",
		zap.String("transport", cfg.Publish.Transport),
		zap.String("url", cfg.Publish.URL),
	)
	return nil
}

// disconnect gracefully closes the monitoring chain.
// Closing the device closes its messages channel, which drains the converters
// and ends ProcessSamples.
func (state *appState) disconnect() {
	state.mu.Lock()
	chain := state.chain
	state.chain = nil
	state.device = nil
	state.mu.Unlock()

	if chain == nil {
		return
	}
	if err := chain.device.Close(); err != nil {
		state.logger.Warn("Error closing device", zap.Error(err))
	}
	<-chain.sessionDone

	if chain.publisher != nil {
		state.session.RemoveSink(chain.publisher)
		chain.publisherClose()
	}
	state.logger.Info("Disconnected")
}

// startFeed serves the websocket live feed when configured. The hub stays
// subscribed to the session across reconnects.
func (state *appState) startFeed() {
	addr := state.cfg.Publish.WebSocket
	if addr == "" {
		return
	}

	state.hub = publish.NewHub(state.cfg.Publish.ECGBatch, state.logger.Named("feed"))
	state.session.AddSink(state.hub)

	mux := http.NewServeMux()
	mux.Handle("/ws", state.hub)
	state.feed = &http.Server{Addr: addr, Handler: mux}

	go func() {
		state.logger.Info("Serving websocket feed", zap.String("addr", addr))
		if err := state.feed.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			state.logger.Error("Websocket feed stopped", zap.Error(err))
		}
	}()
}

// shutdown stops recording, monitoring and the feed before the window closes.
func (state *appState) shutdown() {
	state.stopRecording(session.DetailAppClosed)
	state.disconnect()

	if state.store != nil {
		if err := state.store.Close(); err != nil {
			state.logger.Warn("Failed to close session store", zap.Error(err))
		}
	}

	if state.feed != nil {
		state.session.RemoveSink(state.hub)
		state.hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := state.feed.Shutdown(ctx); err != nil {
			state.logger.Warn("Failed to stop websocket feed", zap.Error(err))
		}
	}
}
