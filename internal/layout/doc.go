// Package layout plans the tile grid for multi-camera composite streams.
//
// The planner is a pure function: given the canvas size and the ordered
// rotation hints of N inputs (2 <= N <= 9) it returns the column and row
// counts, the shared tile size, and each input's placement offset. Inputs
// are placed row-major in the order they were given.
package layout
