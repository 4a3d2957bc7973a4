// Package pipeline holds the stages that turn an extraction request into an
// expression graph: geometry loading, date-range resolution, quality masks,
// unit conversion, temporal compositing, spatial reduction and export
// shaping. Only ProbeExtent talks to the remote service.
package pipeline
