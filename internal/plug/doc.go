// Package plug switches smart plugs through the Shelly Gen2 RPC API.
//
// Only the relay is controlled here; presence and mode are tracked by the
// device registry. Failures are classified into sentinel errors so callers
// can tell a timeout from a refused connection or a malformed reply:
//
//	GET http://<ip>/rpc/Switch.Set?id=0&on=true   -> {"was_on": false}
//	GET http://<ip>/rpc/Switch.GetStatus?id=0     -> {"output": true, ...}
package plug
