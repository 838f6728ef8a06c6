// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// authcode is a demo web server that signs a user in with the authorization
// code flow and PKCE against one OpenID Connect provider.
package main

func main() {
	Execute()
}
