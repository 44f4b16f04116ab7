package arg

import (
	"log"

	"github.com/godbus/dbus/v5"

	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

// serviceName picks the bus name for the --instance flag.
func serviceName() string {
	if instance != "" {
		return ipc.InstanceServiceName(instance)
	}
	return ipc.ServiceName
}

// ledgerObject connects to the chosen bus and returns the ledger object.
// The caller closes the connection.
func ledgerObject() (*dbus.Conn, dbus.BusObject) {
	var (
		conn *dbus.Conn
		err  error
	)
	if systemBus {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		log.Fatal("Failed to connect to bus:", err)
	}
	return conn, conn.Object(serviceName(), dbus.ObjectPath(ipc.ObjectPath))
}
