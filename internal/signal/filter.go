// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package signal

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultOrder is the Butterworth order of the high-pass and low-pass stages.
	DefaultOrder = 4
	// DefaultNotchFrequency is the mains frequency removed by the notch stage.
	DefaultNotchFrequency = 50.0
	// NotchQ is the quality factor of the notch stage.
	NotchQ = 30.0
)

// FilterParams configures the filter pipeline.
type FilterParams struct {
	Highpass  float64 // High-pass cutoff in Hz
	Lowpass   float64 // Low-pass cutoff in Hz
	Notch     bool    // Apply the notch stage
	NotchFreq float64 // Notch frequency in Hz, DefaultNotchFrequency if zero
	Order     int     // Butterworth order, DefaultOrder if zero
}

// Filter runs the pipeline in its only sanctioned order: high-pass, then
// low-pass, then the optional notch. Stages do not commute in general.
func Filter[T Sample](p FilterParams, rate float64, m Matrix[T]) (Matrix[T], error) {
	order := p.Order
	if order == 0 {
		order = DefaultOrder
	}

	out, err := apply(m, rate, p.Highpass, butterworth(highpass, order), "high-pass")
	if err != nil {
		return nil, err
	}
	if out, err = apply(out, rate, p.Lowpass, butterworth(lowpass, order), "low-pass"); err != nil {
		return nil, err
	}
	if p.Notch {
		freq := p.NotchFreq
		if freq == 0 {
			freq = DefaultNotchFrequency
		}
		if out, err = apply(out, rate, freq, notchDesign, "notch"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Highpass applies a zero-phase Butterworth high-pass filter to every channel.
func Highpass[T Sample](cutoff, rate float64, m Matrix[T]) (Matrix[T], error) {
	return apply(m, rate, cutoff, butterworth(highpass, DefaultOrder), "high-pass")
}

// Lowpass applies a zero-phase Butterworth low-pass filter to every channel.
func Lowpass[T Sample](cutoff, rate float64, m Matrix[T]) (Matrix[T], error) {
	return apply(m, rate, cutoff, butterworth(lowpass, DefaultOrder), "low-pass")
}

// Notch applies a zero-phase notch filter at freq to every channel.
func Notch[T Sample](freq, rate float64, m Matrix[T]) (Matrix[T], error) {
	return apply(m, rate, freq, notchDesign, "notch")
}

// design returns the cascade for a cutoff and the padding length used at
// each edge of the signal.
type design func(cutoff, rate float64) (cascade, int)

func apply[T Sample](m Matrix[T], rate, cutoff float64, d design, name string) (Matrix[T], error) {
	nyquist := rate / 2
	if !(rate > 0) || !(cutoff > 0 && cutoff < nyquist) {
		return nil, fmt.Errorf("%w: %s cutoff %g Hz outside (0, %g) Hz", ErrFilter, name, cutoff, nyquist)
	}

	c, pad := d(cutoff, rate)
	out := make(Matrix[T], len(m))
	for ch := range m {
		out[ch] = fromRow[T](c.filtfilt(m.Row(ch), pad))
	}
	return out, nil
}

type response int

const (
	lowpass response = iota
	highpass
)

// biquad is a normalised second order section (a0 = 1).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) biquad {
	return biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// dcGain is the section's response to a constant input.
func (q biquad) dcGain() float64 {
	return (q.b0 + q.b1 + q.b2) / (1 + q.a1 + q.a2)
}

type cascade []biquad

// dcGain is the response of the whole cascade to a constant input.
func (c cascade) dcGain() float64 {
	g := 1.0
	for _, q := range c {
		g *= q.dcGain()
	}
	return g
}

// butterworth builds an even order Butterworth design from order/2 sections.
// Odd orders are rounded up.
func butterworth(r response, order int) design {
	sections := (order + 1) / 2
	if sections < 1 {
		sections = 1
	}
	return func(cutoff, rate float64) (cascade, int) {
		w0 := 2 * math.Pi * cutoff / rate
		cos, sin := math.Cos(w0), math.Sin(w0)

		c := make(cascade, sections)
		for k := range c {
			q := 1 / (2 * math.Cos(float64(2*k+1)*math.Pi/float64(4*sections)))
			alpha := sin / (2 * q)
			switch r {
			case highpass:
				c[k] = newBiquad((1+cos)/2, -(1 + cos), (1+cos)/2, 1+alpha, -2*cos, 1-alpha)
			default:
				c[k] = newBiquad((1-cos)/2, 1-cos, (1-cos)/2, 1+alpha, -2*cos, 1-alpha)
			}
		}
		// Three periods of the cutoff, at least three samples per section.
		return c, max(3*len(c)*3, int(math.Ceil(3*rate/cutoff)))
	}
}

func notchDesign(freq, rate float64) (cascade, int) {
	w0 := 2 * math.Pi * freq / rate
	cos := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * NotchQ)
	c := cascade{newBiquad(1, -2*cos, 1, 1+alpha, -2*cos, 1-alpha)}
	// The notch rings for roughly Q periods.
	return c, int(math.Ceil(3 * NotchQ * rate / freq))
}

// run filters x in place. Each section starts in the steady state for a
// constant input equal to x[0].
func (c cascade) run(x []float64) {
	if len(x) == 0 {
		return
	}
	x0 := x[0]
	for _, q := range c {
		y0 := q.dcGain() * x0
		z1 := (q.b1+q.b2)*x0 - (q.a1+q.a2)*y0
		z2 := q.b2*x0 - q.a2*y0
		for i, v := range x {
			y := q.b0*v + z1
			z1 = q.b1*v - q.a1*y + z2
			z2 = q.b2*v - q.a2*y
			x[i] = y
		}
		x0 = y0
	}
}

// filtfilt applies the cascade forward and backward, so the result has no
// phase shift. The row mean is removed first and passed through at the
// cascade's DC gain. Both edges are padded with a mirror image of the signal
// (x[1], x[2], ... before x[0]), which keeps the level of the padding equal
// to the level of the data next to it.
func (c cascade) filtfilt(x []float64, pad int) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	pad = min(pad, n-1)
	mean := stat.Mean(x, nil)

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i > 0; i-- {
		ext = append(ext, x[i]-mean)
	}
	for _, v := range x {
		ext = append(ext, v-mean)
	}
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, x[i]-mean)
	}

	c.run(ext)
	slices.Reverse(ext)
	c.run(ext)
	slices.Reverse(ext)

	out := ext[pad : pad+n]
	offset := mean * c.dcGain() * c.dcGain()
	for i := range out {
		out[i] += offset
	}
	return out
}
