// Package common holds process-wide helpers shared by the commands.
package common

// Version is overridden at build time with -ldflags.
var Version = "dev"

// PackageName is the default service tag in logs.
const PackageName = "wallet-custody"
