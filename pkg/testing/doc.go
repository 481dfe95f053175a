// Package testing provides a testing SDK for using varmock in Go tests.
//
// Routes, variants and mocks are declared with a fluent builder, written to a
// temporary definitions folder and served by a real varmock core bound to a
// random local port. The server is stopped when the test completes.
//
// # Basic Usage
//
//	func TestMyAPI(t *testing.T) {
//	    vm := vmtest.New(t)
//
//	    users := vm.Route("users", "/api/users", "GET")
//	    users.Variant("ok").WithJSON([]string{"alice"})
//	    users.Variant("down").WithStatus(503).WithJSON(map[string]string{"message": "down"})
//
//	    vm.Mock("base").Use("users:ok")
//	    vm.Mock("outage").From("base").Use("users:down")
//
//	    url := vm.Start()
//
//	    resp, err := http.Get(url + "/api/users")
//	    // ...
//
//	    vm.UseMock("outage")
//	    // ... requests now get the 503 variant
//
//	    vm.AssertServed(t, "users", "ok", 1)
//	}
//
// # Overrides
//
// Route variant overrides apply on top of the active mock until restored:
//
//	vm.UseRouteVariant("users:down")
//	vm.RestoreRouteVariants()
//
// # Delays
//
// Delays are set per variant, per route, or globally in milliseconds:
//
//	users.WithDelay(50)
//	users.Variant("slow").WithDelay(500)
//	vm.SetDelay(10)
package testing
