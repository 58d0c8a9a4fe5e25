// Package runs describes one scrape run after it finished and fans it out to the
// optional sinks: the snapshot archive (BlobStore), the completion topic
// (Publisher) and the run ledger (Store). Sinks never influence the HTTP
// response; their failures are logged and counted.
package runs
