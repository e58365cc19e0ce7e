/*
Package sandbox provides pooled goja runtimes with execution limits.

# Overview

Both halves of the bridge run scripts in a sandbox runtime. Each runtime has:

  - A call stack limit
  - An execution timeout enforced with goja interrupts
  - No module loader globals (require, module, exports)
  - Console output captured per execution and mirrored to the zap logger

The owner host leases one runtime per connected renderer from a Pool and
drives it with Guard for the lifetime of the connection. Scripts run with
Execute or, when Go code needs the VM directly, with Do.

# Usage Example

	pool, err := sandbox.NewPool(sandbox.ConfigFrom(cfg.Sandbox), cfg.Sandbox.PoolSize, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := pool.Execute(ctx, "1 + 1")
*/
package sandbox
