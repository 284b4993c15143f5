// Package identity decides whether a (MAC, hostname) pair belongs to a given
// device kind and what hostname to record for it.
//
// Resolution runs an ordered chain of strategies and returns the first hit:
//
//  1. pattern: hostname starts with a configured prefix for the kind
//  2. registry: the MAC is a live device of that kind
//  3. history: the MAC was previously identified as that kind
//
// When the chain matches but the incoming hostname is empty or the "unknown"
// placeholder, the hostname is filled from the registry record, then from
// history. This is how a removed camera is recognised again when its DHCP
// renewal carries no name.
package identity
