package ir

// Version is the friendsync release version.
const Version = "0.1.0"
