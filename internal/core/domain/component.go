package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SWITCH_ID_BATTERY_CHARGE = "growatt_battery_charge"
	SENSOR_ID_BRIDGE_STATE   = "bridge_state"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("growatt2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Growatt",
		Model:        "SPH (Modbus RS485)",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Growatt %s", baseTopic),
	}
}

func BatteryChargeSwitch(baseTopic string) GenericSwitch {
	dev := BridgeDevice(baseTopic)
	return GenericSwitch{
		Device:   dev,
		Id:       SWITCH_ID_BATTERY_CHARGE,
		Name:     "Battery charge",
		UniqueId: fmt.Sprintf("%s_%s", dev.Id, SWITCH_ID_BATTERY_CHARGE),
		Icon:     "mdi:battery-charging",
	}
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}
