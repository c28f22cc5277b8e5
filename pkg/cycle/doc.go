// Package cycle implements the per-cycle synchronous data handling of
// the MN application.
package cycle

// Every cycle the controller pulls the inputs of the controlled nodes
// from the stack, checks them against the running light sequence the
// nodes are expected to echo back, advances the running light on the
// outputs and pushes the outputs into the stack.
//
// A node echoes its outputs onto its inputs, so the input side follows
// the same sequence as the output side, delayed by the propagation
// latency. The Verifier tolerates up to period consecutive mismatched
// cycles before it declares a data fault.
