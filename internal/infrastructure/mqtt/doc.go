// Package mqtt provides MQTT client connectivity for Tagwatch Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Topic builders for live values and alarms
//
// # Architecture
//
// MQTT is an optional outbound relay. When enabled, every liveData and alarm
// event the monitor produces is also published to the broker so plant
// historians and SCADA gateways can consume it without talking to the API.
//
//	OPC UA server → Tagwatch Core → MQTT broker → downstream consumers
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials belong in TAGWATCH_MQTT_USERNAME / TAGWATCH_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().Alarm("critical")
//	client.Publish(topic, payload, 1, false)
package mqtt
