// Command liunctl is a thin HTTP client for liund, driving the
// sign/verify/advance_epoch/dispute endpoints from the command line.
// Grounded on the teacher's generate/client/client.go and
// sign/client/client.go flag-driven --mode dispatch pattern.
package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
	"github.com/noospheer/Liun/internal/wire"
)

var (
	host          = flag.String("host", "localhost:8443", "liund host:port")
	mode          = flag.String("mode", "", "sign, verify, advance_epoch, dispute")
	insecureHTTP  = flag.Bool("insecure_http", false, "talk plain HTTP instead of TLS")
	skipTLSVerify = flag.Bool("skip_tls_verify", false, "skip server certificate verification (development only)")

	message   = flag.Uint64("message", 0, "message field element")
	sigma     = flag.Uint64("sigma", 0, "signature field element")
	committee = flag.String("committee", "", "comma-separated committee node ids")
	epochID   = flag.String("epoch_id", "", "epoch id returned by advance_epoch")
	degree    = flag.Int("degree", 0, "signing polynomial degree for advance_epoch")
	threshold = flag.Int("threshold", 0, "DKG threshold for advance_epoch")
	reports   = flag.String("reports", "", "comma-separated verifier_id:accepted pairs, e.g. 1:true,2:false")

	timeout = flag.Duration("timeout", 10*time.Second, "request timeout")

	controlPSKPath = flag.String("control_psk", "", "shared PSK file matching liund's --control_psk, MAC-authenticating this request")
	runIdx         = flag.Uint64("run_idx", 0, "monotonic run index for this control channel; must increase on every call against the same --control_psk")
)

// controlChannel opens the same simulated MAC channel liund derives
// from --control_psk, or nil if unset (spec §6.3 control-plane MAC).
func controlChannel() (keychannel.Channel, error) {
	if *controlPSKPath == "" {
		return nil, nil
	}
	pskBytes, err := os.ReadFile(*controlPSKPath)
	if err != nil {
		return nil, err
	}
	return keychannel.Open(0, pskBytes), nil
}

func elemsFromUint64s(vals ...uint64) []gf61.Elem {
	out := make([]gf61.Elem, len(vals))
	for i, v := range vals {
		out[i] = v % gf61.M61
	}
	return out
}

// macTag seals payload at *runIdx over ch, returning 0 if ch is nil.
func macTag(ch keychannel.Channel, payload []gf61.Elem) (uint64, error) {
	if ch == nil {
		return 0, nil
	}
	env, err := wire.Seal(ch, 0, 0, *runIdx, wire.SigPartial, payload)
	if err != nil {
		return 0, err
	}
	return env.MACTag, nil
}

func client() *http.Client {
	c := &http.Client{Timeout: *timeout}
	if *skipTLSVerify {
		c.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return c
}

func baseURL() string {
	scheme := "https"
	if *insecureHTTP {
		scheme = "http"
	}
	return scheme + "://" + *host
}

func postJSON(path string, body interface{}) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := client().Post(baseURL()+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("liunctl: %s returned %d: %s", path, resp.StatusCode, string(out))
	}
	return out, nil
}

func parseUint64List(s string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			glog.Errorf("invalid id %q: %v", part, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func runSign() error {
	ch, err := controlChannel()
	if err != nil {
		return err
	}
	committeeIDs := parseUint64List(*committee)
	tag, err := macTag(ch, elemsFromUint64s(append([]uint64{*message}, committeeIDs...)...))
	if err != nil {
		return err
	}
	req := map[string]interface{}{
		"message":   *message,
		"committee": committeeIDs,
		"run_idx":   *runIdx,
		"mac_tag":   tag,
	}
	out, err := postJSON("/sign", req)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runVerify() error {
	ch, err := controlChannel()
	if err != nil {
		return err
	}
	tag, err := macTag(ch, elemsFromUint64s(*message, *sigma))
	if err != nil {
		return err
	}
	req := map[string]interface{}{
		"epoch_id": *epochID,
		"message":  *message,
		"sigma":    *sigma,
		"run_idx":  *runIdx,
		"mac_tag":  tag,
	}
	out, err := postJSON("/verify", req)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runAdvanceEpoch() error {
	ch, err := controlChannel()
	if err != nil {
		return err
	}
	tag, err := macTag(ch, elemsFromUint64s(uint64(*degree), uint64(*threshold)))
	if err != nil {
		return err
	}
	req := map[string]interface{}{
		"degree":    *degree,
		"threshold": *threshold,
		"run_idx":   *runIdx,
		"mac_tag":   tag,
	}
	out, err := postJSON("/advance_epoch", req)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runDispute() error {
	type report struct {
		VerifierID uint64 `json:"verifier_id"`
		Accepted   bool   `json:"accepted"`
	}
	var parsed []report
	for _, entry := range strings.Split(*reports, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			glog.Errorf("invalid verifier id %q: %v", parts[0], err)
			continue
		}
		accepted, err := strconv.ParseBool(parts[1])
		if err != nil {
			glog.Errorf("invalid accepted flag %q: %v", parts[1], err)
			continue
		}
		parsed = append(parsed, report{VerifierID: id, Accepted: accepted})
	}

	ch, err := controlChannel()
	if err != nil {
		return err
	}
	payload := elemsFromUint64s(*message, *sigma)
	for _, rep := range parsed {
		var accepted uint64
		if rep.Accepted {
			accepted = 1
		}
		payload = append(payload, elemsFromUint64s(rep.VerifierID, accepted)...)
	}
	tag, err := macTag(ch, payload)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"message": *message,
		"sigma":   *sigma,
		"reports": parsed,
		"run_idx": *runIdx,
		"mac_tag": tag,
	}
	out, err := postJSON("/dispute", req)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()

	var err error
	switch *mode {
	case "sign":
		err = runSign()
	case "verify":
		err = runVerify()
	case "advance_epoch":
		err = runAdvanceEpoch()
	case "dispute":
		err = runDispute()
	default:
		fmt.Fprintln(os.Stderr, "liunctl: --mode must be one of sign, verify, advance_epoch, dispute")
		os.Exit(2)
	}
	if err != nil {
		glog.Errorf("%v", err)
		os.Exit(1)
	}
}
