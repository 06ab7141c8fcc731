package main

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/govitals/pkg/config"
	"github.com/itohio/govitals/pkg/link"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createLinkTab(state),
		createDisplayTab(state),
		createAlarmTab(state),
		createRecordingTab(state),
		createPublishTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig writes the configuration and reports failures.
func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// reconnect restarts the chain when connected so link changes apply.
func reconnect(state *appState) {
	state.mu.Lock()
	connected := state.device != nil && state.device.IsConnected()
	state.mu.Unlock()
	if !connected {
		return
	}
	handleConnect(state)
	handleConnect(state)
}

// portOptions lists serial ports by display name, including the current one.
func portOptions(current string) ([]string, map[string]string) {
	options := []string{}
	names := make(map[string]string)

	if ports, err := link.Ports(); err == nil {
		for _, port := range ports {
			display := port.Name
			if port.Description != "" && port.Description != port.Name {
				display = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			options = append(options, display)
			names[display] = port.Name
		}
	}

	for _, name := range names {
		if name == current {
			return options, names
		}
	}
	if current != "" {
		options = append(options, current)
		names[current] = current
	}
	return options, names
}

// createLinkTab selects the link kind, serial port and UDP listen address.
func createLinkTab(state *appState) *container.TabItem {
	kindSelect := widget.NewSelect([]string{config.LinkUDP, config.LinkSerial, config.LinkMock}, nil)
	kindSelect.SetSelected(state.cfg.Link.Kind)

	options, names := portOptions(state.cfg.Serial.Port)
	portSelect := widget.NewSelect(options, nil)
	for display, name := range names {
		if name == state.cfg.Serial.Port {
			portSelect.SetSelected(display)
		}
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	listenEntry := widget.NewEntry()
	listenEntry.SetText(state.cfg.Link.Listen)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Link", Widget: kindSelect},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "UDP Listen", Widget: listenEntry},
		},
		OnSubmit: func() {
			before := *state.cfg

			if kindSelect.Selected != "" {
				state.cfg.Link.Kind = kindSelect.Selected
			}
			if portSelect.Selected != "" {
				port := names[portSelect.Selected]
				if port == "" {
					port = portSelect.Selected
				}
				state.cfg.Serial.Port = port
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			if listenEntry.Text != "" {
				state.cfg.Link.Listen = listenEntry.Text
			}
			saveConfig(state)

			if before.Link != state.cfg.Link || before.Serial != state.cfg.Serial {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Link", form)
}

// createDisplayTab creates the ECG scope configuration tab.
func createDisplayTab(state *appState) *container.TabItem {
	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Display.WindowSeconds))

	pointsEntry := widget.NewEntry()
	pointsEntry.SetText(strconv.Itoa(state.cfg.Display.MaxPoints))

	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(state.cfg.Display.AverageSamples))

	yMinEntry := widget.NewEntry()
	yMinEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Display.YMin))

	yMaxEntry := widget.NewEntry()
	yMaxEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Display.YMax))

	autoCheck := widget.NewCheck("Auto-scale", nil)
	autoCheck.SetChecked(state.cfg.Display.AutoScale)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Max Points", Widget: pointsEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageEntry},
			{Text: "Y Min (ADC)", Widget: yMinEntry},
			{Text: "Y Max (ADC)", Widget: yMaxEntry},
			{Text: "Y Range", Widget: autoCheck},
		},
		OnSubmit: func() {
			if ws, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil && ws > 0 {
				state.cfg.Display.WindowSeconds = ws
			}
			if mp, err := strconv.Atoi(pointsEntry.Text); err == nil && mp > 1 {
				state.cfg.Display.MaxPoints = mp
			}
			if avg, err := strconv.Atoi(averageEntry.Text); err == nil && avg >= 0 {
				state.cfg.Display.AverageSamples = avg
			}
			if v, err := strconv.ParseFloat(yMinEntry.Text, 64); err == nil {
				state.cfg.Display.YMin = v
			}
			if v, err := strconv.ParseFloat(yMaxEntry.Text, 64); err == nil {
				state.cfg.Display.YMax = v
			}
			state.cfg.Display.AutoScale = autoCheck.Checked
			saveConfig(state)
			// Window and averaging apply on the next connect.
		},
	}

	return container.NewTabItem("Display", form)
}

// createAlarmTab edits the colouring and hypoxia thresholds.
func createAlarmTab(state *appState) *container.TabItem {
	minSpO2Entry := widget.NewEntry()
	minSpO2Entry.SetText(strconv.Itoa(state.cfg.Alarm.MinSpO2))

	minHREntry := widget.NewEntry()
	minHREntry.SetText(strconv.Itoa(state.cfg.Alarm.MinHeartRate))

	maxHREntry := widget.NewEntry()
	maxHREntry.SetText(strconv.Itoa(state.cfg.Alarm.MaxHeartRate))

	hypoxiaEntry := widget.NewEntry()
	hypoxiaEntry.SetText(strconv.Itoa(state.cfg.Alarm.HypoxiaSpO2))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Min SpO2 (%)", Widget: minSpO2Entry},
			{Text: "Min Heart Rate (BPM)", Widget: minHREntry},
			{Text: "Max Heart Rate (BPM)", Widget: maxHREntry},
			{Text: "Hypoxia Event SpO2 (%)", Widget: hypoxiaEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.Atoi(minSpO2Entry.Text); err == nil {
				state.cfg.Alarm.MinSpO2 = v
			}
			if v, err := strconv.Atoi(minHREntry.Text); err == nil {
				state.cfg.Alarm.MinHeartRate = v
			}
			if v, err := strconv.Atoi(maxHREntry.Text); err == nil {
				state.cfg.Alarm.MaxHeartRate = v
			}
			if v, err := strconv.Atoi(hypoxiaEntry.Text); err == nil {
				state.cfg.Alarm.HypoxiaSpO2 = v
			}
			saveConfig(state)
			state.vitals.setThresholds(state.cfg.Thresholds())
		},
	}

	return container.NewTabItem("Alarm", form)
}

// createRecordingTab creates the history file configuration tab.
func createRecordingTab(state *appState) *container.TabItem {
	dirEntry := widget.NewEntry()
	dirEntry.SetText(state.cfg.Recording.Directory)

	ecgCheck := widget.NewCheck("Record every ECG sample", nil)
	ecgCheck.SetChecked(state.cfg.Recording.ECG)

	dbEntry := widget.NewEntry()
	dbEntry.SetPlaceHolder("sessions.db")
	dbEntry.SetText(state.cfg.Recording.Database)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Directory", Widget: dirEntry},
			{Text: "ECG", Widget: ecgCheck},
			{Text: "Database (empty=off)", Widget: dbEntry},
		},
		OnSubmit: func() {
			if dirEntry.Text != "" {
				state.cfg.Recording.Directory = dirEntry.Text
			}
			state.cfg.Recording.ECG = ecgCheck.Checked
			state.cfg.Recording.Database = dbEntry.Text
			saveConfig(state)
		},
	}

	return container.NewTabItem("Recording", form)
}

// createPublishTab creates the NATS publisher configuration tab.
func createPublishTab(state *appState) *container.TabItem {
	enabledCheck := widget.NewCheck("Publish", nil)
	enabledCheck.SetChecked(state.cfg.Publish.Enabled)

	transportSelect := widget.NewSelect([]string{config.TransportNATS, config.TransportMQTT}, nil)
	transportSelect.SetSelected(state.cfg.Publish.Transport)

	userEntry := widget.NewEntry()
	userEntry.SetText(state.cfg.Publish.Username)

	passwordEntry := widget.NewPasswordEntry()
	passwordEntry.SetText(state.cfg.Publish.Password)

	urlEntry := widget.NewEntry()
	urlEntry.SetText(state.cfg.Publish.URL)

	vitalsEntry := widget.NewEntry()
	vitalsEntry.SetText(state.cfg.Publish.VitalsSubject)

	eventsEntry := widget.NewEntry()
	eventsEntry.SetText(state.cfg.Publish.EventsSubject)

	ecgEntry := widget.NewEntry()
	ecgEntry.SetText(state.cfg.Publish.ECGSubject)

	feedEntry := widget.NewEntry()
	feedEntry.SetText(state.cfg.Publish.WebSocket)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Enabled", Widget: enabledCheck},
			{Text: "Transport", Widget: transportSelect},
			{Text: "URL", Widget: urlEntry},
			{Text: "Username", Widget: userEntry},
			{Text: "Password", Widget: passwordEntry},
			{Text: "Vitals Subject", Widget: vitalsEntry},
			{Text: "Events Subject", Widget: eventsEntry},
			{Text: "ECG Subject (empty=off)", Widget: ecgEntry},
			{Text: "Websocket Feed (restart)", Widget: feedEntry},
		},
		OnSubmit: func() {
			state.cfg.Publish.Enabled = enabledCheck.Checked
			if transportSelect.Selected != "" {
				state.cfg.Publish.Transport = transportSelect.Selected
			}
			state.cfg.Publish.Username = userEntry.Text
			state.cfg.Publish.Password = passwordEntry.Text
			if urlEntry.Text != "" {
				state.cfg.Publish.URL = urlEntry.Text
			}
			state.cfg.Publish.VitalsSubject = vitalsEntry.Text
			state.cfg.Publish.EventsSubject = eventsEntry.Text
			state.cfg.Publish.ECGSubject = ecgEntry.Text
			state.cfg.Publish.WebSocket = feedEntry.Text
			saveConfig(state)
			reconnect(state)
		},
	}

	return container.NewTabItem("Publish", form)
}

// createMockTab creates the simulated board configuration tab.
func createMockTab(state *appState) *container.TabItem {
	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.NoiseLevel))

	dropoutEntry := widget.NewEntry()
	dropoutEntry.SetText(strconv.Itoa(state.cfg.Mock.DropoutEvery))

	decimationEntry := widget.NewEntry()
	decimationEntry.SetText(strconv.Itoa(state.cfg.Mock.PPGDecimation))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Noise Level", Widget: noiseEntry},
			{Text: "PPG Dropout Every (0=never)", Widget: dropoutEntry},
			{Text: "PPG Decimation", Widget: decimationEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(noiseEntry.Text, 32); err == nil && v >= 0 {
				state.cfg.Mock.NoiseLevel = float32(v)
			}
			if v, err := strconv.Atoi(dropoutEntry.Text); err == nil && v >= 0 {
				state.cfg.Mock.DropoutEvery = v
			}
			if v, err := strconv.Atoi(decimationEntry.Text); err == nil && v > 0 {
				state.cfg.Mock.PPGDecimation = v
			}
			saveConfig(state)
			if state.cfg.Link.Kind == config.LinkMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
