// Package mqtt publishes entity records to an MQTT broker with paho.
//
// Records land on <prefix>/<topic>/<key>, eg retail/customers/cus-1000, so a
// subscriber to retail/customers/# sees every customer and per-key ordering
// follows MQTT's per-topic ordering. QoS defaults to 1: a message counts as
// delivered once the broker sent PUBACK.
//
// Select it with an address such as mqtt://localhost:1883; options:
//
//	publisher:
//	  address: mqtt://localhost:1883
//	  options:
//	    topicPrefix: retail
//	    qos: 1
//	    username: retail
//	    password: secret
//	    tls:
//	      caFile: /etc/ssl/mqtt-ca.pem
package mqtt
