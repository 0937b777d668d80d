// Package ble provides the Bluetooth Low Energy session with the electronic
// chessboard. It handles discovery, connection management, sensor
// notifications, and LED frame writes.
package ble

import (
	"context"
	"fmt"
)

// Chessboard GATT characteristic UUIDs
const (
	WriteCharUUID   = "1b7e8272-2877-41c3-b46e-cf057c562023" // LED frames and init code
	DataCharUUID    = "1b7e8262-2877-41c3-b46e-cf057c562023" // sensor matrix notifications
	ConfirmCharUUID = "1b7e8273-2877-41c3-b46e-cf057c562023" // init confirmation
)

// InitCode must be written once notifications are enabled; the board does
// not report its sensors until it has seen it.
var InitCode = [3]byte{0x21, 0x01, 0x00}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications.
	Unsubscribe() error
}

// Device represents a discovered BLE peripheral. Index is assigned by the
// scan that found it and is only meaningful until the next scan.
type Device struct {
	Index   int
	Name    string
	Address string
	RSSI    int
}

// String renders the device as a discovery listing line.
func (d Device) String() string {
	return fmt.Sprintf("%d. %s %s", d.Index, d.Name, d.Address)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID in any service.
	DiscoverCharacteristic(charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals whose local name starts with
	// namePrefix (all peripherals when empty) until ctx is done.
	Scan(ctx context.Context, namePrefix string) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
