// Package reconcile stores the certificate attachments of a shipment in the
// document repository so that exactly one live record exists per
// (shipment, certificate reference) pair, and reverts every record a batch
// touched when any write in the batch fails.
package reconcile
