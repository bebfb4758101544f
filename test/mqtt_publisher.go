// Command mqtt_publisher is a bench console for edge nodes: it sends switch
// commands, simulates telemetry readings and watches both topics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	topicCommand   = "AC"
	topicTelemetry = "BME"
)

// 环境数据结构, same wire form the telemetry node publishes
type Reading struct {
	Temp float64 `json:"temp"`
	Humi float64 `json:"humi"`
	Pres float64 `json:"pres"`
}

func main() {
	// 命令行参数
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	mode := flag.String("mode", "watch", "mode: on, off, raw, simulate, watch")
	payload := flag.String("payload", "garbage123", "payload for -mode raw")
	interval := flag.Duration("interval", 5*time.Second, "publish interval for -mode simulate")
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("edge-bench-%d", time.Now().Unix()))
	if *username != "" {
		opts.SetUsername(*username)
		opts.SetPassword(*password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("connect to %s failed: %v\n", *broker, token.Error())
		os.Exit(1)
	}
	fmt.Printf("connected to %s\n", *broker)
	defer client.Disconnect(250)

	switch *mode {
	case "on":
		publish(client, topicCommand, []byte("rsw03_on"))
	case "off":
		publish(client, topicCommand, []byte("rsw03_off"))
	case "raw":
		publish(client, topicCommand, []byte(*payload))
	case "simulate":
		simulate(client, *interval)
	case "watch":
		watch(client)
	default:
		fmt.Println("unknown mode, use on, off, raw, simulate or watch")
		os.Exit(1)
	}
}

func publish(client paho.Client, topic string, payload []byte) bool {
	token := client.Publish(topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		fmt.Printf("publish to %s failed: %v\n", topic, token.Error())
		return false
	}
	fmt.Printf("[%s] %s <- %s\n", time.Now().Format("15:04:05"), topic, payload)
	return true
}

// simulate publishes a drifting reading every interval until interrupted.
func simulate(client paho.Client, interval time.Duration) {
	r := Reading{Temp: 22.0, Humi: 45.0, Pres: 1013.0}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		r.Temp = round1(r.Temp + rand.Float64() - 0.5)
		r.Humi = round1(clamp(r.Humi+rand.Float64()*2-1, 0, 100))
		r.Pres = round1(r.Pres + rand.Float64()*0.6 - 0.3)

		data, err := json.Marshal(r)
		if err != nil {
			fmt.Printf("encode reading failed: %v\n", err)
			return
		}
		publish(client, topicTelemetry, data)

		select {
		case <-sigChan:
			return
		case <-ticker.C:
		}
	}
}

// watch prints every message on both topics until interrupted.
func watch(client paho.Client) {
	handler := func(_ paho.Client, msg paho.Message) {
		fmt.Printf("[%s] %s -> %s\n", time.Now().Format("15:04:05"), msg.Topic(), msg.Payload())
		if msg.Topic() != topicTelemetry {
			return
		}
		var r Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			fmt.Printf("    malformed reading: %v\n", err)
		}
	}

	for _, topic := range []string{topicCommand, topicTelemetry} {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			fmt.Printf("subscribe %s failed: %v\n", topic, token.Error())
			return
		}
	}
	fmt.Printf("watching %s and %s\n", topicCommand, topicTelemetry)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

func round1(v float64) float64 { return float64(int(v*10)) / 10 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
