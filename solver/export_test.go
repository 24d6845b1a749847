package solver

// SetRelaxHook makes b call hook at the start of every node relaxation.
func SetRelaxHook(b *BranchAndBound, hook func()) {
	b.beforeRelax = hook
}
