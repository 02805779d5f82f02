// Command canto is operator tooling around the scoring library: score a
// pitch list by hand, analyse a single recording, re-run a batch of trials
// from a manifest, or inspect the active analysis bundle.
package main
