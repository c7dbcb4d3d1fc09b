// Command poslog records posd status updates into InfluxDB. It dials the
// posd websocket, flattens each status document into fields and writes
// one point per axis per update.
//
// Usage:
//
//	poslog [flags]
//
// Flags:
//
//	-url string     posd websocket URL (default "ws://localhost:8502/api/ws")
//	-influx string  InfluxDB server URL (default "http://localhost:9999")
//	-token string   InfluxDB auth token (default $INFLUX_TOKEN)
//	-org string     InfluxDB organization (default "beamctl")
//	-bucket string  InfluxDB bucket (default "positioners")
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

var (
	wsURL     = flag.String("url", "ws://localhost:8502/api/ws", "posd websocket URL")
	influxURL = flag.String("influx", "http://localhost:9999", "InfluxDB server URL")
	token     = flag.String("token", os.Getenv("INFLUX_TOKEN"), "InfluxDB auth token")
	org       = flag.String("org", "beamctl", "InfluxDB organization")
	bucket    = flag.String("bucket", "positioners", "InfluxDB bucket")
)

func main() {
	flag.Parse()

	client := influxdb2.NewClient(*influxURL, *token)
	defer client.Close()
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()

	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()

	for {
		if err := logStatus(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// logStatus streams one websocket connection's worth of updates into
// InfluxDB. Returns when the connection drops.
func logStatus(writeApi api.WriteApi) error {
	defer writeApi.Flush()

	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(*wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected to %s", *wsURL)

	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		now := time.Now()
		for axis, state := range status {
			fields := make(map[string]interface{})
			flatten(fields, state, "")
			if len(fields) == 0 {
				continue
			}
			p := influxdb2.NewPoint("axis.status",
				map[string]string{"axis": axis},
				fields,
				now,
			)
			writeApi.WritePoint(p)
		}
	}
}

// flatten turns nested JSON into dotted field names.
func flatten(fields map[string]interface{}, v interface{}, prefix string) {
	switch v := v.(type) {
	case map[string]interface{}:
		for k, child := range v {
			flatten(fields, child, prefix+"."+k)
		}
	case []interface{}:
		for i, child := range v {
			flatten(fields, child, fmt.Sprintf("%s.%d", prefix, i))
		}
	default:
		if prefix != "" {
			fields[prefix[1:]] = v
		}
	}
}
