package mqtt

import "encoding/json"

// DiscoveryPrefix is the Home Assistant discovery prefix.
const DiscoveryPrefix = "homeassistant"

// Device describes the controller to Home Assistant.
type Device struct {
	Name       string
	Identifier string
}

type deviceConfig struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// EntityConfig is the discovery payload for one entity.
type EntityConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	StateTopic        string       `json:"state_topic"`
	CommandTopic      string       `json:"command_topic,omitempty"`
	AvailabilityTopic string       `json:"availability_topic"`
	PayloadOn         string       `json:"payload_on,omitempty"`
	PayloadOff        string       `json:"payload_off,omitempty"`
	DeviceClass       string       `json:"device_class,omitempty"`
	Unit              string       `json:"unit_of_measurement,omitempty"`
	Device            deviceConfig `json:"device"`
}

type entity struct {
	component string
	config    EntityConfig
}

func (d Device) entities(t Topics) []entity {
	dev := deviceConfig{
		Name:         d.Name,
		Identifiers:  []string{d.Identifier},
		Manufacturer: "Linghammar",
		Model:        "Water Control",
	}
	newSwitch := func(name, id, state, command string) entity {
		return entity{component: "switch", config: EntityConfig{
			Name:              name,
			UniqueID:          id,
			StateTopic:        state,
			CommandTopic:      command,
			AvailabilityTopic: t.Availability,
			PayloadOn:         PayloadOn,
			PayloadOff:        PayloadOff,
			Device:            dev,
		}}
	}
	newSensor := func(name, id, state string) entity {
		return entity{component: "sensor", config: EntityConfig{
			Name:              name,
			UniqueID:          id,
			StateTopic:        state,
			AvailabilityTopic: t.Availability,
			DeviceClass:       "water",
			Unit:              "l",
			Device:            dev,
		}}
	}

	return []entity{
		newSwitch("Main Water", "main_water_switch", t.MainState, t.MainCommand),
		newSwitch("Automatic watering", "watering_switch", t.AutomaticState, t.AutomaticCommand),
		newSensor("Total water used", "total_water_sensor", t.TotalState),
		newSensor("Current water used", "current_water_sensor", t.CurrentState),
	}
}

// DiscoveryMessages returns the retained Home Assistant config messages for
// the device's two switches and two water sensors.
func (d Device) DiscoveryMessages(t Topics) ([]Message, error) {
	var msgs []Message
	for _, e := range d.entities(t) {
		payload, err := json.Marshal(e.config)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			Topic:    DiscoveryPrefix + "/" + e.component + "/" + d.Identifier + "/" + e.config.UniqueID + "/config",
			Payload:  payload,
			QoS:      1,
			Retained: true,
		})
	}
	return msgs, nil
}
