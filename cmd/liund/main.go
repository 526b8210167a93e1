// Command liund runs a single Liun node as an HTTPS service: mutual-TLS
// HTTP/2 endpoints over the Node orchestrator's sign/verify/dispute/
// advance_epoch API. Grounded on the teacher's
// generate/server/server.go and sign/server/server.go (flag-based
// config, glog logging, gorilla/mux routing, TLS with client-cert
// verification, http2.ConfigureServer).
package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
	"github.com/noospheer/Liun/internal/node"
	"github.com/noospheer/Liun/internal/uss"
	"github.com/noospheer/Liun/internal/wire"
)

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

var (
	listen        = flag.String("listen", ":8443", "address to listen on")
	nodeID        = flag.Uint64("node_id", 0, "this node's identifier")
	committeeFlag = flag.String("committee", "", "comma-separated node ids in this Liun instance's committee")

	tlsCert      = flag.String("tls_cert", "certs/server.crt", "TLS certificate path")
	tlsKey       = flag.String("tls_key", "certs/server.key", "TLS key path")
	clientCertCA = flag.String("client_cert_ca", "certs/client-ca.crt", "client certificate CA bundle")
	insecureHTTP = flag.Bool("insecure_http", false, "serve plain HTTP instead of mutual-TLS (development only)")

	auditKeyPath = flag.String("audit_key", "", "HMAC key file for optional dispute-resolution audit attestations")

	controlPSKPath = flag.String("control_psk", "", "shared PSK file MAC-authenticating the control API of §6.3; if unset, requests are accepted unauthenticated (development only)")
)

func parseCommittee(s string) ([]gf61.Elem, error) {
	var ids []gf61.Elem
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, gf61.Elem(v))
	}
	return ids, nil
}

// Every request/response DTO below carries the run_idx/mac_tag pair of
// spec §6.3's wire envelope alongside its JSON fields: RunIdx is the
// monotonic index the sender's control channel MAC was computed at,
// MACTag the resulting tag. When controlChannel is nil (no
// --control_psk configured) both fields are ignored.

type signRequest struct {
	Message   uint64   `json:"message"`
	Committee []uint64 `json:"committee"`
	RunIdx    uint64   `json:"run_idx"`
	MACTag    uint64   `json:"mac_tag"`
}

type signResponse struct {
	Partial uint64 `json:"partial"`
	RunIdx  uint64 `json:"run_idx"`
	MACTag  uint64 `json:"mac_tag"`
}

type verifyRequest struct {
	EpochID string `json:"epoch_id"`
	Message uint64 `json:"message"`
	Sigma   uint64 `json:"sigma"`
	RunIdx  uint64 `json:"run_idx"`
	MACTag  uint64 `json:"mac_tag"`
}

type verifyResponse struct {
	OK                 bool   `json:"ok"`
	InsufficientPoints bool   `json:"insufficient_points"`
	RunIdx             uint64 `json:"run_idx"`
	MACTag             uint64 `json:"mac_tag"`
}

type advanceEpochRequest struct {
	Degree    int    `json:"degree"`
	Threshold int    `json:"threshold"`
	RunIdx    uint64 `json:"run_idx"`
	MACTag    uint64 `json:"mac_tag"`
}

type advanceEpochResponse struct {
	EpochID string `json:"epoch_id"`
	RunIdx  uint64 `json:"run_idx"`
	MACTag  uint64 `json:"mac_tag"`
}

type disputeRequest struct {
	Message uint64              `json:"message"`
	Sigma   uint64              `json:"sigma"`
	Reports []disputeReportWire `json:"reports"`
	RunIdx  uint64              `json:"run_idx"`
	MACTag  uint64              `json:"mac_tag"`
}

type disputeReportWire struct {
	VerifierID uint64 `json:"verifier_id"`
	Accepted   bool   `json:"accepted"`
}

type disputeResponse struct {
	Verdict string `json:"verdict"`
	Token   string `json:"token,omitempty"`
	RunIdx  uint64 `json:"run_idx"`
	MACTag  uint64 `json:"mac_tag"`
}

// elemsFromUint64s reduces raw uint64s into field elements the same
// way keychannel derives MAC keys from PSK bytes (spec §6.3: "Payloads
// encode field elements").
func elemsFromUint64s(vals ...uint64) []gf61.Elem {
	out := make([]gf61.Elem, len(vals))
	for i, v := range vals {
		out[i] = v % gf61.M61
	}
	return out
}

func boolElem(b bool) gf61.Elem {
	if b {
		return 1
	}
	return 0
}

func uuidElems(id uuid.UUID) []gf61.Elem {
	return []gf61.Elem{
		binary.BigEndian.Uint64(id[:8]) % gf61.M61,
		binary.BigEndian.Uint64(id[8:]) % gf61.M61,
	}
}

// verifyControlMAC checks macTag/runIdx against ch's payload MAC, a
// no-op when ch is nil (no --control_psk configured).
func verifyControlMAC(ch keychannel.Channel, payload []gf61.Elem, runIdx, macTag uint64) error {
	if ch == nil {
		return nil
	}
	_, err := wire.Open(ch, wire.Envelope{Payload: payload, RunIdx: runIdx, MACTag: macTag % gf61.M61})
	return err
}

// sealControlResponse computes the response MAC at responseRunIdx, a
// no-op returning (responseRunIdx, 0) when ch is nil.
func sealControlResponse(ch keychannel.Channel, payload []gf61.Elem, responseRunIdx uint64) (uint64, uint64, error) {
	if ch == nil {
		return responseRunIdx, 0, nil
	}
	env, err := wire.Seal(ch, 0, 0, responseRunIdx, wire.SigPartial, payload)
	if err != nil {
		return 0, 0, err
	}
	return env.RunIdx, env.MACTag, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func signHandler(n *node.Node, ctrl keychannel.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := verifyControlMAC(ctrl, elemsFromUint64s(append([]uint64{req.Message}, req.Committee...)...), req.RunIdx, req.MACTag); err != nil {
			glog.Errorf("sign: control MAC rejected: %v", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		committee := make([]gf61.Elem, len(req.Committee))
		for i, c := range req.Committee {
			committee[i] = gf61.Elem(c)
		}
		partial, err := n.Sign(gf61.Elem(req.Message), committee)
		if err != nil {
			glog.Errorf("sign failed: %v", err)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		runIdx, mac, err := sealControlResponse(ctrl, elemsFromUint64s(partial), req.RunIdx+1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(signResponse{Partial: partial, RunIdx: runIdx, MACTag: mac})
	}
}

func verifyHandler(n *node.Node, ctrl keychannel.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := verifyControlMAC(ctrl, elemsFromUint64s(req.Message, req.Sigma), req.RunIdx, req.MACTag); err != nil {
			glog.Errorf("verify: control MAC rejected: %v", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		epID, err := parseUUID(req.EpochID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, insufficient, err := n.Verify(epID, gf61.Elem(req.Message), gf61.Elem(req.Sigma))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		runIdx, mac, err := sealControlResponse(ctrl, []gf61.Elem{boolElem(ok), boolElem(insufficient)}, req.RunIdx+1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(verifyResponse{OK: ok, InsufficientPoints: insufficient, RunIdx: runIdx, MACTag: mac})
	}
}

func advanceEpochHandler(n *node.Node, ctrl keychannel.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req advanceEpochRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := verifyControlMAC(ctrl, elemsFromUint64s(uint64(req.Degree), uint64(req.Threshold)), req.RunIdx, req.MACTag); err != nil {
			glog.Errorf("advance_epoch: control MAC rejected: %v", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		epID, err := n.AdvanceEpoch(req.Degree, req.Threshold)
		if err != nil {
			glog.Errorf("advance_epoch failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runIdx, mac, err := sealControlResponse(ctrl, uuidElems(epID), req.RunIdx+1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(advanceEpochResponse{EpochID: epID.String(), RunIdx: runIdx, MACTag: mac})
	}
}

func disputeHandler(n *node.Node, ctrl keychannel.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req disputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload := elemsFromUint64s(req.Message, req.Sigma)
		for _, rep := range req.Reports {
			payload = append(payload, rep.VerifierID%gf61.M61, boolElem(rep.Accepted))
		}
		if err := verifyControlMAC(ctrl, payload, req.RunIdx, req.MACTag); err != nil {
			glog.Errorf("dispute: control MAC rejected: %v", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		reports := make([]uss.VerifierReport, len(req.Reports))
		for i, rep := range req.Reports {
			reports[i] = uss.VerifierReport{VerifierID: gf61.Elem(rep.VerifierID), Accepted: rep.Accepted}
		}
		verdict, token, err := n.ResolveDispute(gf61.Elem(req.Message), gf61.Elem(req.Sigma), reports)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		runIdx, mac, err := sealControlResponse(ctrl, []gf61.Elem{verdictElem(verdict)}, req.RunIdx+1)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(disputeResponse{Verdict: verdict, Token: token, RunIdx: runIdx, MACTag: mac})
	}
}

func verdictElem(verdict string) gf61.Elem {
	if verdict == "valid" {
		return 1
	}
	return 0
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()

	committee, err := parseCommittee(*committeeFlag)
	if err != nil {
		glog.Errorf("invalid --committee: %v", err)
		os.Exit(1)
	}
	if len(committee) == 0 {
		glog.Error("--committee must name at least one node id")
		os.Exit(1)
	}

	n := node.New(gf61.Elem(*nodeID), committee)
	if *auditKeyPath != "" {
		key, err := os.ReadFile(*auditKeyPath)
		if err != nil {
			glog.Errorf("could not read --audit_key: %v", err)
			os.Exit(1)
		}
		n.AuditKey = key
	}

	var ctrl keychannel.Channel
	if *controlPSKPath != "" {
		pskBytes, err := os.ReadFile(*controlPSKPath)
		if err != nil {
			glog.Errorf("could not read --control_psk: %v", err)
			os.Exit(1)
		}
		ctrl = keychannel.Open(gf61.Elem(*nodeID), pskBytes)
	} else {
		glog.Warningf("node %d: no --control_psk configured, control API requests are not MAC-authenticated", *nodeID)
	}

	router := mux.NewRouter()
	router.Methods(http.MethodGet).Path("/healthz").HandlerFunc(healthHandler)
	router.Methods(http.MethodPost).Path("/sign").HandlerFunc(signHandler(n, ctrl))
	router.Methods(http.MethodPost).Path("/verify").HandlerFunc(verifyHandler(n, ctrl))
	router.Methods(http.MethodPost).Path("/advance_epoch").HandlerFunc(advanceEpochHandler(n, ctrl))
	router.Methods(http.MethodPost).Path("/dispute").HandlerFunc(disputeHandler(n, ctrl))

	server := &http.Server{
		Addr:    *listen,
		Handler: router,
	}

	if *insecureHTTP {
		glog.Warningf("node %d: serving plain HTTP on %s (insecure_http set)", *nodeID, *listen)
		if err := server.ListenAndServe(); err != nil {
			glog.Errorf("server error: %v", err)
			os.Exit(1)
		}
		return
	}

	certificate, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
	if err != nil {
		glog.Errorf("could not load server key pair: %v", err)
		os.Exit(1)
	}
	clientCACertPool := x509.NewCertPool()
	clientCaCert, err := os.ReadFile(*clientCertCA)
	if err != nil {
		glog.Errorf("could not load client CA bundle: %v", err)
		os.Exit(1)
	}
	clientCACertPool.AppendCertsFromPEM(clientCaCert)

	server.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{certificate},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCACertPool,
	}
	http2.ConfigureServer(server, &http2.Server{})

	glog.V(2).Infof("node %d: listening on %s", *nodeID, *listen)
	if err := server.ListenAndServeTLS("", ""); err != nil {
		glog.Errorf("server error: %v", err)
		os.Exit(1)
	}
}
