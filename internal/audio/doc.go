// Package audio handles sample-rate conversion and buffering of captured audio.
// It implements linear-interpolation resampling to the fixed target rate and an
// ordered segment buffer with FIFO fixed-size chunk extraction.
package audio
