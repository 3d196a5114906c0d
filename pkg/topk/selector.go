// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

// SelectAlgorithm chooses the algorithm for the configuration, given the axis length (ignored if not axisKnown).
//
// Decision, in order:
//
//   - cfg.Algorithm if forced (not AlgorithmAuto).
//   - AlgorithmHeap if the axis length is not known (axisKnown is false).
//   - AlgorithmBubble if axisLen <= opts.BubbleMaxAxis or cfg.K <= opts.BubbleMaxK.
//   - AlgorithmBitonic otherwise.
//
// inPlace is only true for bubble, when cfg.K <= opts.BubbleMaxK: the K winners so far are kept in a buffer
// and each element of the slice is inserted into it as it streams by, instead of K full passes over the slice.
func SelectAlgorithm(cfg Config, axisLen int, axisKnown bool, opts Options) (algo Algorithm, inPlace bool) {
	switch {
	case cfg.Algorithm != AlgorithmAuto:
		algo = cfg.Algorithm
	case !axisKnown:
		algo = AlgorithmHeap
	case axisLen <= opts.BubbleMaxAxis || cfg.K <= opts.BubbleMaxK:
		algo = AlgorithmBubble
	default:
		algo = AlgorithmBitonic
	}
	inPlace = algo == AlgorithmBubble && cfg.K <= opts.BubbleMaxK
	return
}
