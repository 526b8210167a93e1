// Package psk implements the length-preserving ITS-style key expander
// named but left unspecified by spec §9 ("Toeplitz hash keyed by r_i").
// original_source's reference implementation resolves this with a
// keyed extendable-output function; we follow that resolution using
// the teacher's own kyber dependency, go.dedis.ch/kyber/v4/xof/blake2xb,
// a keyed, seekable XOF closer in spirit to "Toeplitz hash keyed by
// r_i" than a bare fixed-output digest.
package psk

import "go.dedis.ch/kyber/v4/xof/blake2xb"

// Expand stretches seed into targetLen bytes of ITS-style key material.
// Same seed and length always produce the same output; different seeds
// are independent (min-entropy of seed is preserved up to the XOF's own
// negligible slack), matching the length-preserving expansion contract
// of spec §4.6 and §4.7.
func Expand(seed []byte, targetLen int) []byte {
	xof := blake2xb.New(seed)
	out := make([]byte, targetLen)
	if _, err := xof.Read(out); err != nil {
		// blake2xb's XOF stream is not documented to fail on Read; a
		// failure here indicates a broken entropy source upstream and
		// is not recoverable at this layer.
		panic(err)
	}
	return out
}

// bytesPerRun is the per-run MAC key budget mirrored from
// original_source/sim/core/mock_liu.py: _psk_extract_mac_keys reads
// 16 bytes of (r, s) MAC key material per run, offset by a 2-byte
// framing gap.
const bytesPerRun = 18

// PSKLength is the standard Liu-PSK length for a channel expected to
// survive runs advance_run() calls: 32 bytes of session seed plus
// bytesPerRun bytes of MAC key material per supported run, matching
// spec §9's "32 + ceil(B/8) bytes" with B expressed here as a run
// budget rather than a raw bit count.
func PSKLength(runs int) int {
	if runs < 1 {
		runs = 1
	}
	return 32 + runs*bytesPerRun
}
