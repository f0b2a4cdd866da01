// Package device defines the vocabulary shared by the BLE central client and the
// radio stacks it drives.
//
// It contains:
//   - Immutable peripheral values (Device) and the connection state enum
//   - The error taxonomy used across the client (NotFoundError, ConnectionError and sentinels)
//   - The Stack/Link contracts a radio binding implements, and the StackCallbacks
//     interface through which the binding reports asynchronous results
//   - UUID normalization helpers
package device
