// Package mocks provides shared mock implementations for testing.
//
// Two styles are used. Function-field mocks such as MockJWTService fall back
// to fixed values when a function is not set:
//
//	jwt := &mocks.MockJWTService{
//	    Claims: &auth.Claims{UserID: "user-1"},
//	}
//
// Testify mocks such as TestifyMockTaskService record calls and verify
// expectations:
//
//	svc := new(mocks.TestifyMockTaskService)
//	svc.On("SetUserLimit", "user-1", 3).Return()
//	// ...
//	svc.AssertExpectations(t)
package mocks
