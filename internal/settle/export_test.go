package settle

// MaxAmount exposes maxAmount to the external test package.
var MaxAmount = maxAmount
