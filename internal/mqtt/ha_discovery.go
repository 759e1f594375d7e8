package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device         HADiscoveryDevice `json:"device"`
	StateTopic     string            `json:"state_topic"`
	CommandTopic   string            `json:"command_topic,omitempty"`
	DeviceClass    string            `json:"device_class,omitempty"`
	AvTopic        string            `json:"availability_topic,omitempty"`
	EntityCategory string            `json:"entity_category,omitempty"`
	Name           string            `json:"name"`
	UniqueId       string            `json:"unique_id"`
	Platform       string            `json:"platform"`
	PayloadOn      string            `json:"payload_on,omitempty"`
	PayloadOff     string            `json:"payload_off,omitempty"`
	StateOn        string            `json:"state_on,omitempty"`
	StateOff       string            `json:"state_off,omitempty"`
	Icon           string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySwitchTopic(prefix string, _switch domain.GenericSwitch) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", prefix, _switch.Device.Id, _switch.Id)
}

func HADiscoveryBridgeStateTopic(prefix string, dev domain.Device) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s/config", prefix, dev.Id, domain.SENSOR_ID_BRIDGE_STATE)
}

func GenericSwitchToHADiscoveryMessage(session Session, _switch domain.GenericSwitch) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(_switch.Device),
		StateTopic:   session.StateTopic(),
		CommandTopic: session.CommandTopic(),
		AvTopic:      session.BridgeStateTopic(),
		Name:         _switch.Name,
		UniqueId:     _switch.UniqueId,
		Icon:         _switch.Icon,
		Platform:     "mqtt",
		PayloadOn:    MQTT_PAYLOAD_ON,
		PayloadOff:   MQTT_PAYLOAD_OFF,
		StateOn:      MQTT_PAYLOAD_ON,
		StateOff:     MQTT_PAYLOAD_OFF,
	}
}

func BridgeStateToHADiscoveryMessage(session Session, dev domain.Device) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:         device(dev),
		StateTopic:     session.BridgeStateTopic(),
		DeviceClass:    "connectivity",
		EntityCategory: "diagnostic",
		Name:           "Bridge state",
		UniqueId:       fmt.Sprintf("%s_%s", dev.Id, domain.SENSOR_ID_BRIDGE_STATE),
		Platform:       "mqtt",
		PayloadOn:      MQTT_PAYLOAD_ONLINE,
		PayloadOff:     MQTT_PAYLOAD_OFFLINE,
	}
}

// HADiscoveryMessages returns the retained discovery payloads keyed by topic.
func HADiscoveryMessages(session Session, prefix, baseTopic string) (map[string][]byte, error) {
	_switch := domain.BatteryChargeSwitch(baseTopic)
	messages := make(map[string][]byte, 2)

	payload, err := json.Marshal(GenericSwitchToHADiscoveryMessage(session, _switch))
	if err != nil {
		return nil, err
	}
	messages[HADiscoverySwitchTopic(prefix, _switch)] = payload

	payload, err = json.Marshal(BridgeStateToHADiscoveryMessage(session, _switch.Device))
	if err != nil {
		return nil, err
	}
	messages[HADiscoveryBridgeStateTopic(prefix, _switch.Device)] = payload

	return messages, nil
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
