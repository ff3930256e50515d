package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:3310", "recalld server URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "health":
		err = get(*server + "/api/health")
	case "consolidate":
		kind := "triggered"
		if len(args) > 1 {
			kind = args[1]
		}
		err = post(*server+"/api/consolidate", map[string]string{"kind": kind})
	case "graph":
		url := *server + "/api/graph"
		if len(args) > 1 {
			url += "?domain=" + args[1]
		}
		err = get(url)
	case "query":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: recallctl query <keyword> [domain]")
			os.Exit(2)
		}
		q := map[string]interface{}{"keywords": []string{args[1]}, "limit": 10}
		if len(args) > 2 {
			q["domain"] = args[2]
		}
		err = post(*server+"/api/graph/query", q)
	case "stats":
		err = get(*server + "/api/stats/patterns")
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("recallctl - operate a recalld instance")
	fmt.Println("usage: recallctl [-server URL] <command>")
	fmt.Println("commands:")
	fmt.Println("  health                      service health")
	fmt.Println("  consolidate [kind]          trigger a consolidation run (nightly|weekly|triggered)")
	fmt.Println("  graph [domain]              build the knowledge graph")
	fmt.Println("  query <keyword> [domain]    ranked graph node lookup")
	fmt.Println("  stats                       aggregated pattern statistics")
}

var client = &http.Client{Timeout: 5 * time.Minute}

func get(url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return dump(resp)
}

func post(url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return dump(resp)
}

func dump(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
