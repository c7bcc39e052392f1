// Package kms creates, restores and opens threshold wallets.
//
// A wallet secret is the constant term of a threshold 2 polynomial over the secp256k1
// scalar field. Three shares of it live in different places:
//
//   - the cloud share, stored by an interfaces.CloudStorage under "haqq_<address>"
//   - the device share, encrypted with the user's password in local storage
//   - the social share, split again with a threshold 3 polynomial across remote share nodes
//     and indexed in the metadata service under "socialShareIndex"
//
// Any two of the three rebuild the secret. Initializer.Initialize performs signup, restore
// and private key import; Initializer.RecoverSocialShare collects the social share back from
// the share nodes after a social sign-in.
//
// A Provider is the per-account handle. It keeps no key material in memory and rebuilds
// the secret from the device and cloud shares whenever an account is derived:
//
//	provider, err := initializer.Initialize(ctx, kms.InitializeParams{
//	    Verifier:    "google",
//	    Token:       idToken,
//	    GetPassword: askPassword,
//	    Storage:     cloud,
//	    Options:     kms.InitializeOptions{MetadataURL: metadataURL, GenerateSharesURL: generatorURL},
//	})
//	info, err := provider.GetAccountInfo(ctx, "m/44'/60'/0'/0/0")
//
// Shamir arithmetic (Polynomial, LagrangeInterpolation) is exported for the share node stubs
// and tooling.
package kms
