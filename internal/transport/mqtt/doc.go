// Package mqtt adapts the paho MQTT client to the messaging.Transport interface.
package mqtt
