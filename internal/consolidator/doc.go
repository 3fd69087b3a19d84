// Package consolidator relocates arbitrarily divisible data between drives so
// that as few drives as possible still hold any data. It validates the input,
// processes drives by descending capacity, fills each receiver greedily from
// the remaining drives in original order and records every transfer in an
// ordered, replayable move log expressed in original drive positions.
package consolidator
